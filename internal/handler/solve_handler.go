package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/middleware"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
	"github.com/noah-isme/workshop-scheduler/pkg/response"
)

type solveService interface {
	Solve(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error)
}

// SolveHandler exposes the synchronous solve endpoint.
type SolveHandler struct {
	solver solveService
}

// NewSolveHandler constructs SolveHandler.
func NewSolveHandler(solver solveService) *SolveHandler {
	return &SolveHandler{solver: solver}
}

// Solve godoc
// @Summary Solve an instance synchronously
// @Description Builds the assignment model for the given families and returns the decoded outcome. Infeasible and engine-error outcomes are reported with 200 and their kind.
// @Tags Solve
// @Accept json
// @Produce json
// @Param payload body dto.SolveRequest true "Instance"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /solve [post]
func (h *SolveHandler) Solve(c *gin.Context) {
	var req dto.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resp, err := h.solver.Solve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, resp.Cached)
	middleware.SetMeta(c, "engine", resp.Engine)
	response.JSON(c, http.StatusOK, resp, nil, middleware.ExtractMeta(c))
}
