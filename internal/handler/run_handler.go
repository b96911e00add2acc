package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/internal/service"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
	"github.com/noah-isme/workshop-scheduler/pkg/response"
)

type runService interface {
	Create(ctx context.Context, req dto.SolveRequest, actorID string) (*dto.RunCreatedResponse, error)
	Get(ctx context.Context, id string) (*models.SolveRun, error)
	List(ctx context.Context, filter models.RunFilter) ([]models.SolveRun, *models.Pagination, error)
	Assignments(ctx context.Context, id string) (*dto.RunAssignmentsResponse, error)
	Cancel(ctx context.Context, id, actorID string, role models.UserRole) (*models.SolveRun, error)
	Export(ctx context.Context, id string, req dto.ExportRequest) (*dto.ExportResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.RunDownload, error)
}

// RunHandler exposes asynchronous run endpoints.
type RunHandler struct {
	runs runService
}

// NewRunHandler constructs RunHandler.
func NewRunHandler(runs runService) *RunHandler {
	return &RunHandler{runs: runs}
}

// Create godoc
// @Summary Queue an asynchronous solve
// @Tags Runs
// @Accept json
// @Produce json
// @Param payload body dto.SolveRequest true "Instance"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /runs [post]
func (h *RunHandler) Create(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.runs.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, fmt.Sprintf("%s/%s", strings.TrimSuffix(c.Request.URL.Path, "/"), created.ID), created)
}

// List godoc
// @Summary List runs
// @Tags Runs
// @Produce json
// @Param status query string false "Filter by status"
// @Param mine query bool false "Only runs requested by the caller"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /runs [get]
func (h *RunHandler) List(c *gin.Context) {
	filter := models.RunFilter{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseRunStatus(strings.ToUpper(raw))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw)))
			return
		}
		filter.Status = &status
	}
	if c.Query("mine") == "true" {
		claims, err := claimsFromContext(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.RequestedBy = claims.UserID
	}
	runs, pagination, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// Get godoc
// @Summary Run status and summary
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Assignments godoc
// @Summary Assignments of a finished run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /runs/{id}/assignments [get]
func (h *RunHandler) Assignments(c *gin.Context) {
	result, err := h.runs.Assignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a queued or running run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /runs/{id}/cancel [post]
func (h *RunHandler) Cancel(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	run, err := h.runs.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, "", run)
}

// Export godoc
// @Summary Export a finished run
// @Tags Runs
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.ExportRequest true "Export format"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /runs/{id}/exports [post]
func (h *RunHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.runs.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export through its signed token
// @Tags Runs
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *RunHandler) Download(c *gin.Context) {
	download, err := h.runs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "private, no-store")
	c.Header("X-Expires-At", download.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	c.DataFromReader(http.StatusOK, info.Size(), contentType(download.Filename), download.File, nil)
}

func contentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(filename, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
