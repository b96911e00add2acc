package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/workshop-scheduler/internal/models"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

type tokenTable map[string]models.UserRole

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	role, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{UserID: token, Role: role}, nil
}

func TestRegisterRoutesEnforcesRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	runs := &runServiceMock{run: &models.SolveRun{ID: "run-1"}}
	RegisterRoutes(r.Group("/api/v1"), tokenTable{"v": models.RoleViewer, "p": models.RolePlanner}, NewSolveHandler(nil), NewRunHandler(runs))

	cases := []struct {
		method, path, token string
		code                int
	}{
		{http.MethodGet, "/api/v1/runs/run-1", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/runs/run-1", "v", http.StatusOK},
		{http.MethodPost, "/api/v1/runs/run-1/cancel", "v", http.StatusForbidden},
		{http.MethodPost, "/api/v1/runs/run-1/cancel", "p", http.StatusAccepted},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.code, w.Code, "%s %s as %q", tc.method, tc.path, tc.token)
	}
}

func TestRegisterRoutesWithoutRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), tokenTable{"p": models.RolePlanner}, NewSolveHandler(nil), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer p")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
