package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/middleware"
	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/internal/service"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

type runServiceMock struct {
	createResp  *dto.RunCreatedResponse
	createErr   error
	createActor string
	run         *models.SolveRun
	runErr      error
	filter      models.RunFilter
	assignments *dto.RunAssignmentsResponse
	cancelRole  models.UserRole
	export      *dto.ExportResponse
	download    *service.RunDownload
	downloadErr error
}

func (m *runServiceMock) Create(ctx context.Context, req dto.SolveRequest, actorID string) (*dto.RunCreatedResponse, error) {
	m.createActor = actorID
	return m.createResp, m.createErr
}

func (m *runServiceMock) Get(ctx context.Context, id string) (*models.SolveRun, error) {
	return m.run, m.runErr
}

func (m *runServiceMock) List(ctx context.Context, filter models.RunFilter) ([]models.SolveRun, *models.Pagination, error) {
	m.filter = filter
	return []models.SolveRun{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *runServiceMock) Assignments(ctx context.Context, id string) (*dto.RunAssignmentsResponse, error) {
	if m.assignments == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "run is QUEUED and has no assignments")
	}
	return m.assignments, nil
}

func (m *runServiceMock) Cancel(ctx context.Context, id, actorID string, role models.UserRole) (*models.SolveRun, error) {
	m.cancelRole = role
	return m.run, m.runErr
}

func (m *runServiceMock) Export(ctx context.Context, id string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	return m.export, nil
}

func (m *runServiceMock) ResolveDownload(ctx context.Context, token string) (*service.RunDownload, error) {
	return m.download, m.downloadErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func planner(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "planner-1", Role: models.RolePlanner})
}

func TestRunHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &runServiceMock{createResp: &dto.RunCreatedResponse{ID: "run-1", Status: models.RunStatusQueued}}
	handler := NewRunHandler(mockSvc)

	payload, _ := json.Marshal(dto.SolveRequest{Requesters: []dto.RequesterInput{{ID: 1, Size: 2}}})
	c, w := newGinContext(http.MethodPost, "/api/v1/runs", payload)
	planner(c)

	handler.Create(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/runs/run-1", w.Header().Get("Location"))
	assert.Equal(t, "planner-1", mockSvc.createActor)
}

func TestRunHandlerCreateRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{})

	c, w := newGinContext(http.MethodPost, "/api/v1/runs", []byte(`{}`))
	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRunHandlerCreateRejectsBadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{})

	c, w := newGinContext(http.MethodPost, "/api/v1/runs", []byte(`{"requesters": "nope"}`))
	planner(c)
	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &runServiceMock{}
	handler := NewRunHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/api/v1/runs?status=solved&mine=true&page=2&limit=5", nil)
	planner(c)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.filter.Status)
	assert.Equal(t, models.RunStatusSolved, *mockSvc.filter.Status)
	assert.Equal(t, "planner-1", mockSvc.filter.RequestedBy)
	assert.Equal(t, 2, mockSvc.filter.Page)
	assert.Equal(t, 5, mockSvc.filter.PageSize)

	c, w = newGinContext(http.MethodGet, "/api/v1/runs?status=DONE", nil)
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{runErr: appErrors.ErrNotFound})

	c, w := newGinContext(http.MethodGet, "/api/v1/runs/x", nil)
	c.Params = gin.Params{{Key: "id", Value: "x"}}
	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunHandlerAssignmentsConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{})

	c, w := newGinContext(http.MethodGet, "/api/v1/runs/run-1/assignments", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	handler.Assignments(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
}

func TestRunHandlerCancelPassesRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &runServiceMock{run: &models.SolveRun{ID: "run-1", Status: models.RunStatusCancelled}}
	handler := NewRunHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/api/v1/runs/run-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	planner(c)
	handler.Cancel(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.RolePlanner, mockSvc.cancelRole)
}

func TestRunHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &runServiceMock{export: &dto.ExportResponse{URL: "/api/v1/exports/tok", Format: models.ExportFormatPDF, ExpiresAt: time.Now()}}
	handler := NewRunHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/api/v1/runs/run-1/exports", []byte(`{"format":"pdf"}`))
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	handler.Export(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/exports/tok")
}

func TestRunHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp("", "submission*.csv")
	require.NoError(t, err)
	defer os.Remove(file.Name())
	_, _ = file.WriteString("family_id,n_people,choice_0,assigned_day\n")
	_, _ = file.Seek(0, 0)

	mockSvc := &runServiceMock{
		download: &service.RunDownload{
			File:      file,
			Filename:  "submission_20261015_101010.csv",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	handler := NewRunHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/api/v1/exports/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "submission_20261015_101010.csv")
	assert.Contains(t, w.Body.String(), "family_id")
}

func TestRunHandlerDownloadForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{downloadErr: appErrors.ErrForbidden})

	c, w := newGinContext(http.MethodGet, "/api/v1/exports/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
