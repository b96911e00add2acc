package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
	"github.com/noah-isme/workshop-scheduler/internal/report"
	"github.com/noah-isme/workshop-scheduler/internal/repository"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
	"github.com/noah-isme/workshop-scheduler/pkg/jobs"
)

// JobTypeSolve tags queue jobs that execute a run.
const JobTypeSolve = "solve"

// ErrRunCancelled is the cancellation cause of a run stopped on request.
var ErrRunCancelled = errors.New("run cancelled")

type runStore interface {
	Create(ctx context.Context, run *models.SolveRun) error
	GetByID(ctx context.Context, id string) (*models.SolveRun, error)
	Update(ctx context.Context, id string, params repository.UpdateRunParams) error
	Transition(ctx context.Context, id string, to models.RunStatus, at time.Time, from ...models.RunStatus) (bool, error)
	SaveResult(ctx context.Context, id string, params repository.UpdateRunParams, assignments []models.RunAssignment, slots []models.RunSlot) error
	ListAssignments(ctx context.Context, runID string) ([]models.RunAssignment, error)
	ListSlots(ctx context.Context, runID string) ([]models.RunSlot, error)
	List(ctx context.Context, filter models.RunFilter) ([]models.SolveRun, int, error)
	ListPending(ctx context.Context, limit int) ([]models.SolveRun, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type runSolver interface {
	Prepare(req dto.SolveRequest) (*Instance, error)
	Execute(ctx context.Context, in *Instance) (*pipeline.Outcome, error)
}

// InFlight tracks the cancel functions of runs currently solving in this process.
type InFlight struct {
	cancels *xsync.Map[string, context.CancelCauseFunc]
}

// NewInFlight builds an empty registry.
func NewInFlight() *InFlight {
	return &InFlight{cancels: xsync.NewMap[string, context.CancelCauseFunc]()}
}

func (f *InFlight) track(id string, cancel context.CancelCauseFunc) { f.cancels.Store(id, cancel) }

func (f *InFlight) release(id string) { f.cancels.Delete(id) }

// Cancel stops the solve of id and reports whether it was running here.
func (f *InFlight) Cancel(id string) bool {
	cancel, ok := f.cancels.Load(id)
	if ok {
		cancel(ErrRunCancelled)
	}
	return ok
}

// Len returns the number of runs solving.
func (f *InFlight) Len() int { return f.cancels.Size() }

// RunServiceConfig governs queue recovery and cleanup.
type RunServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// RunDownload aggregates resolved download data.
type RunDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// RunService orchestrates the asynchronous run lifecycle.
type RunService struct {
	repo     runStore
	queue    jobDispatcher
	solver   runSolver
	inflight *InFlight
	exporter *ExportService
	logger   *zap.Logger
	cfg      RunServiceConfig
}

// NewRunService constructs the run service.
func NewRunService(repo runStore, queue jobDispatcher, solver runSolver, inflight *InFlight, exporter *ExportService, logger *zap.Logger, cfg RunServiceConfig) *RunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inflight == nil {
		inflight = NewInFlight()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 7 * 24 * time.Hour
	}
	return &RunService{
		repo:     repo,
		queue:    queue,
		solver:   solver,
		inflight: inflight,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// Create validates req, persists the run and enqueues it. Preferences are
// indexed up front so malformed input is rejected synchronously.
func (s *RunService) Create(ctx context.Context, req dto.SolveRequest, actorID string) (*dto.RunCreatedResponse, error) {
	in, err := s.solver.Prepare(req)
	if err != nil {
		return nil, err
	}
	if _, err := preference.Build(in.Records, in.Policy); err != nil {
		return nil, TranslateError(err)
	}
	run := &models.SolveRun{
		Status:      models.RunStatusQueued,
		Engine:      string(in.Engine),
		Policy:      models.NewJSON(in.Policy.Spec()),
		Input:       models.NewJSON(in.Records),
		Params:      models.NewJSON(models.RunParams{TimeLimitSeconds: int(in.TimeLimit / time.Second)}),
		RequestedBy: actorID,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create run")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: JobTypeSolve}); err != nil {
		status := models.RunStatusFailed
		msg := "failed to enqueue run"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, run.ID, repository.UpdateRunParams{Status: &status, Message: &msg, FinishedAt: &now})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue run")
	}
	s.logger.Info("run queued", zap.String("run_id", run.ID), zap.String("engine", run.Engine), zap.Int("requesters", len(in.Records)))
	return &dto.RunCreatedResponse{ID: run.ID, Status: run.Status}, nil
}

// Get returns a run.
func (s *RunService) Get(ctx context.Context, id string) (*models.SolveRun, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run")
	}
	return run, nil
}

// List returns runs and pagination metadata.
func (s *RunService) List(ctx context.Context, filter models.RunFilter) ([]models.SolveRun, *models.Pagination, error) {
	runs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list runs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if runs == nil {
		runs = []models.SolveRun{}
	}
	return runs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Assignments returns the persisted result of a finished run.
func (s *RunService) Assignments(ctx context.Context, id string) (*dto.RunAssignmentsResponse, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.HasResult() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("run is %s and has no assignments", run.Status))
	}
	assignments, slots, err := s.results(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.RunAssignmentsResponse{RunID: id, Status: run.Status, Assignments: assignments, Slots: slots}, nil
}

func (s *RunService) results(ctx context.Context, id string) ([]models.RunAssignment, []models.RunSlot, error) {
	assignments, err := s.repo.ListAssignments(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	slots, err := s.repo.ListSlots(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slots")
	}
	return assignments, slots, nil
}

// Cancel stops a run. Queued runs are cancelled at once; a running solve is
// interrupted and keeps its incumbent if it has one. Planners may only cancel
// their own runs.
func (s *RunService) Cancel(ctx context.Context, id, actorID string, role models.UserRole) (*models.SolveRun, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RolePlanner && run.RequestedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	if run.Status.Terminal() {
		return nil, appErrors.ErrRunFinished
	}
	now := time.Now().UTC()
	ok, err := s.repo.Transition(ctx, id, models.RunStatusCancelled, now, models.RunStatusQueued)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel run")
	}
	if !ok && !s.inflight.Cancel(id) {
		// Running but not owned by this process: the worker that held it is gone.
		ok, err = s.repo.Transition(ctx, id, models.RunStatusCancelled, now, models.RunStatusRunning)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel run")
		}
		if !ok {
			return nil, appErrors.ErrRunFinished
		}
	}
	s.logger.Info("run cancel requested", zap.String("run_id", id), zap.String("actor", actorID))
	return s.Get(ctx, id)
}

// Export renders a finished run and returns a signed download link.
func (s *RunService) Export(ctx context.Context, id string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.HasResult() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("run is %s and has no result to export", run.Status))
	}
	assignments, slots, err := s.results(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Generate(ctx, run, assignments, slots, req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate export")
	}
	return &dto.ExportResponse{URL: result.URL, Format: result.Format, ExpiresAt: result.ExpiresAt}, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *RunService) ResolveDownload(ctx context.Context, token string) (*RunDownload, error) {
	grant, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if _, err := s.Get(ctx, grant.Ref); err != nil {
		return nil, err
	}
	file, err := s.exporter.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &RunDownload{File: file, Filename: filepath.Base(grant.Path), ExpiresAt: grant.ExpiresAt}, nil
}

// RecoverPending requeues runs left queued or running by a previous process.
func (s *RunService) RecoverPending(ctx context.Context) {
	pending, err := s.repo.ListPending(ctx, 100)
	if err != nil {
		s.logger.Warn("failed to recover pending runs", zap.Error(err))
		return
	}
	for _, run := range pending {
		if run.Status == models.RunStatusRunning {
			if _, err := s.repo.Transition(ctx, run.ID, models.RunStatusQueued, time.Now().UTC(), models.RunStatusRunning); err != nil {
				s.logger.Warn("failed to reset interrupted run", zap.String("run_id", run.ID), zap.Error(err))
				continue
			}
		}
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: JobTypeSolve}); err != nil {
			s.logger.Warn("failed to requeue pending run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("pending runs recovered", zap.Int("count", len(pending)))
	}
}

// StartCleanup boots a goroutine that purges expired runs and exports periodically.
func (s *RunService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *RunService) cleanupExpired(ctx context.Context) {
	removed, err := s.repo.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-s.cfg.ResultTTL))
	if err != nil {
		s.logger.Warn("run cleanup failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("expired runs removed", zap.Int64("count", removed))
	}
	if s.exporter == nil {
		return
	}
	if files, err := s.exporter.Cleanup(0); err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	} else if len(files) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(files)))
	}
}

// RunWorker bridges queue jobs to the solve pipeline.
type RunWorker struct {
	repo     runStore
	solver   runSolver
	inflight *InFlight
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewRunWorker constructs a worker sharing inflight with the RunService.
func NewRunWorker(repo runStore, solver runSolver, inflight *InFlight, metrics *MetricsService, logger *zap.Logger) *RunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inflight == nil {
		inflight = NewInFlight()
	}
	return &RunWorker{repo: repo, solver: solver, inflight: inflight, metrics: metrics, logger: logger}
}

// Handle processes a queue job. Outcome kinds are terminal; only persistence
// failures are returned for retry.
func (w *RunWorker) Handle(ctx context.Context, job jobs.Job) error {
	run, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Permanent(err)
		}
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	started, err := w.repo.Transition(ctx, run.ID, models.RunStatusRunning, time.Now().UTC(), models.RunStatusQueued, models.RunStatusRunning)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}
	log := w.logger.With(zap.String("run_id", run.ID), zap.String("engine", run.Engine))

	pol, err := policy.New(run.Policy.V)
	if err != nil {
		w.fail(ctx, run.ID, err)
		return jobs.Permanent(err)
	}
	in := &Instance{
		Records:   run.Input.V,
		Policy:    pol,
		Engine:    solver.Kind(run.Engine),
		TimeLimit: time.Duration(run.Params.V.TimeLimitSeconds) * time.Second,
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	w.inflight.track(run.ID, cancel)
	defer func() {
		w.inflight.release(run.ID)
		cancel(nil)
	}()

	w.metrics.RunStarted()
	out, err := w.solver.Execute(runCtx, in)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrEngineUnavailable.Code {
			w.metrics.RunFinished(string(models.RunStatusQueued))
			w.requeue(ctx, run.ID, err)
			return err
		}
		w.metrics.RunFinished(string(models.RunStatusFailed))
		w.fail(ctx, run.ID, err)
		return jobs.Permanent(err)
	}

	if ctx.Err() != nil {
		// Shutting down: leave the run RUNNING so RecoverPending picks it up.
		w.metrics.RunFinished(string(models.RunStatusRunning))
		log.Info("run interrupted by shutdown")
		return ctx.Err()
	}
	status := runStatus(out, errors.Is(context.Cause(runCtx), ErrRunCancelled))
	if err := w.persist(ctx, run.ID, status, out, run.Input.V); err != nil {
		w.metrics.RunFinished(string(models.RunStatusQueued))
		w.requeue(ctx, run.ID, err)
		log.Warn("failed to persist run result", zap.Error(err))
		return err
	}
	w.metrics.RunFinished(string(status))
	log.Info("run finished",
		zap.String("status", string(status)),
		zap.String("fingerprint", out.Fingerprint.String()),
		zap.Float64("objective", out.Objective()),
		zap.Duration("elapsed", out.Elapsed),
	)
	return nil
}

// Exhausted marks a run failed once the queue gives up on it.
func (w *RunWorker) Exhausted(job jobs.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.fail(ctx, job.ID, err)
}

func runStatus(out *pipeline.Outcome, cancelled bool) models.RunStatus {
	if cancelled && !out.Status.HasSolution() {
		return models.RunStatusCancelled
	}
	switch out.Kind {
	case pipeline.KindSolved:
		return models.RunStatusSolved
	case pipeline.KindNoAssignments:
		return models.RunStatusNoAssignments
	case pipeline.KindInfeasible:
		return models.RunStatusInfeasible
	default:
		return models.RunStatusEngineError
	}
}

func (w *RunWorker) persist(ctx context.Context, id string, status models.RunStatus, out *pipeline.Outcome, records []preference.Record) error {
	now := time.Now().UTC()
	kind := string(out.Kind)
	engineStatus := out.Status.String()
	fingerprint := out.Fingerprint.String()
	summary := report.Summarize(out)
	params := repository.UpdateRunParams{
		Status:       &status,
		Outcome:      &kind,
		EngineStatus: &engineStatus,
		Message:      &out.Message,
		Fingerprint:  &fingerprint,
		Summary:      &summary,
		Bound:        summary.Bound,
		Gap:          out.Gap,
		FinishedAt:   &now,
	}
	if out.Solution == nil {
		return w.repo.SaveResult(ctx, id, params, nil, nil)
	}

	objective := out.Objective()
	params.Objective = &objective
	sol := out.Solution
	rows := make([]models.RunAssignment, 0, len(sol.Assignments)+len(sol.Unassigned))
	for _, a := range sol.Assignments {
		slot, rank := a.Slot, a.Rank
		rows = append(rows, models.RunAssignment{
			RequesterID: a.RequesterID,
			Label:       a.Label,
			Slot:        &slot,
			Rank:        &rank,
			Size:        a.Size,
			Score:       a.Score,
		})
	}
	byID := make(map[int]preference.Record, len(records))
	for _, rec := range records {
		byID[rec.RequesterID] = rec
	}
	for _, r := range sol.Unassigned {
		rec := byID[r]
		rows = append(rows, models.RunAssignment{RequesterID: r, Label: rec.Label, Size: rec.Size})
	}
	slots := make([]models.RunSlot, 0, len(sol.Slots))
	for _, st := range sol.Slots {
		slots = append(slots, models.RunSlot{
			Slot:         st.Slot,
			Open:         st.Open,
			Occupancy:    st.Occupancy,
			Groups:       st.Groups,
			MinOccupancy: st.Bounds.Min,
			MaxOccupancy: st.Bounds.Max,
		})
	}
	return w.repo.SaveResult(ctx, id, params, rows, slots)
}

func (w *RunWorker) fail(ctx context.Context, id string, cause error) {
	status := models.RunStatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, id, repository.UpdateRunParams{Status: &status, Message: &msg, FinishedAt: &now}); err != nil {
		w.logger.Warn("failed to mark run failed", zap.String("run_id", id), zap.Error(err))
	}
}

func (w *RunWorker) requeue(ctx context.Context, id string, cause error) {
	if _, err := w.repo.Transition(ctx, id, models.RunStatusQueued, time.Now().UTC(), models.RunStatusRunning); err != nil {
		w.logger.Warn("failed to requeue run", zap.String("run_id", id), zap.Error(err))
	}
	msg := cause.Error()
	if err := w.repo.Update(ctx, id, repository.UpdateRunParams{Message: &msg}); err != nil {
		w.logger.Warn("failed to record run error", zap.String("run_id", id), zap.Error(err))
	}
}
