package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/middleware"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/service"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

type solveServiceFunc func(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error)

func (f solveServiceFunc) Solve(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error) {
	return f(ctx, req)
}

func TestSolveHandlerReturnsOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSolveHandler(solveServiceFunc(func(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error) {
		return &dto.SolveResponse{Kind: pipeline.KindInfeasible, Status: "infeasible", Engine: "gophersat", Cached: true}, nil
	}))

	c, w := newGinContext(http.MethodPost, "/api/v1/solve", []byte(`{"requesters":[{"id":1,"size":2,"choices":[{"slot":1}]}]}`))
	middleware.WithResponseMeta()(c)
	handler.Solve(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data dto.SolveResponse      `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, pipeline.KindInfeasible, body.Data.Kind)
	assert.Equal(t, true, body.Meta["cache_hit"])
	assert.Equal(t, "gophersat", body.Meta["engine"])
}

func TestSolveHandlerMapsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{appErrors.Clone(appErrors.ErrMalformedInput, "duplicate requester"), http.StatusBadRequest},
		{appErrors.ErrEngineUnavailable, http.StatusServiceUnavailable},
		{service.TranslateError(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := NewSolveHandler(solveServiceFunc(func(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error) {
			return nil, tc.err
		}))
		c, w := newGinContext(http.MethodPost, "/api/v1/solve", []byte(`{}`))
		handler.Solve(c)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}
