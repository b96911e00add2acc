package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/internal/report"
)

const runColumns = `id, status, engine, outcome, engine_status, message, fingerprint, policy, input, params, summary, objective, bound, gap, requested_by, created_at, started_at, finished_at`

// Batched inserts stay well under the postgres bind parameter limit.
const resultBatchSize = 1000

// RunRepository persists solve runs and their results.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *RunRepository) Create(ctx context.Context, run *models.SolveRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO solve_runs (id, status, engine, policy, input, params, requested_by, created_at)
VALUES (:id, :status, :engine, :policy, :input, :params, :requested_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create solve run: %w", err)
	}
	return nil
}

// GetByID returns a run by its identifier.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.SolveRun, error) {
	query := `SELECT ` + runColumns + ` FROM solve_runs WHERE id = $1`
	var run models.SolveRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get solve run: %w", err)
	}
	return &run, nil
}

// UpdateRunParams defines the mutable fields.
type UpdateRunParams struct {
	Status       *models.RunStatus
	Outcome      *string
	EngineStatus *string
	Message      *string
	Fingerprint  *string
	Summary      *report.Summary
	Objective    *float64
	Bound        *float64
	Gap          *float64
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

func (p UpdateRunParams) assignments() ([]string, []interface{}) {
	set := make([]string, 0, 11)
	args := make([]interface{}, 0, 12)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.Outcome != nil {
		add("outcome", *p.Outcome)
	}
	if p.EngineStatus != nil {
		add("engine_status", *p.EngineStatus)
	}
	if p.Message != nil {
		add("message", *p.Message)
	}
	if p.Fingerprint != nil {
		add("fingerprint", *p.Fingerprint)
	}
	if p.Summary != nil {
		add("summary", models.NewJSON(p.Summary))
	}
	if p.Objective != nil {
		add("objective", *p.Objective)
	}
	if p.Bound != nil {
		add("bound", *p.Bound)
	}
	if p.Gap != nil {
		add("gap", *p.Gap)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.FinishedAt != nil {
		add("finished_at", *p.FinishedAt)
	}
	return set, args
}

// Update persists the provided changes for a run row.
func (r *RunRepository) Update(ctx context.Context, id string, params UpdateRunParams) error {
	set, args := params.assignments()
	if len(set) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE solve_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)+1)
	args = append(args, id)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update solve run: %w", err)
	}
	return nil
}

// Transition moves a run to status only while it is in one of from. It
// reports whether the row changed, so concurrent transitions cannot both win.
// Entering RUNNING stamps started_at; entering a terminal status stamps
// finished_at.
func (r *RunRepository) Transition(ctx context.Context, id string, to models.RunStatus, at time.Time, from ...models.RunStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	set := "status = $1"
	args := []interface{}{to, id, pq.Array(states)}
	switch {
	case to == models.RunStatusRunning:
		set += ", started_at = $4"
		args = append(args, at)
	case to.Terminal():
		set += ", finished_at = $4"
		args = append(args, at)
	}
	query := fmt.Sprintf("UPDATE solve_runs SET %s WHERE id = $2 AND status = ANY($3)", set)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition solve run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition solve run: %w", err)
	}
	return n > 0, nil
}

// SaveResult writes the final run state and replaces its assignments and
// slots in one transaction, so a retried worker never leaves partial rows.
func (r *RunRepository) SaveResult(ctx context.Context, id string, params UpdateRunParams, assignments []models.RunAssignment, slots []models.RunSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	if err := r.saveResultTx(ctx, tx, id, params, assignments, slots); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run result: %w", err)
	}
	return nil
}

func (r *RunRepository) saveResultTx(ctx context.Context, tx *sqlx.Tx, id string, params UpdateRunParams, assignments []models.RunAssignment, slots []models.RunSlot) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_assignments WHERE run_id = $1", id); err != nil {
		return fmt.Errorf("clear run assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_slots WHERE run_id = $1", id); err != nil {
		return fmt.Errorf("clear run slots: %w", err)
	}

	for start := 0; start < len(assignments); start += resultBatchSize {
		batch := assignments[start:min(start+resultBatchSize, len(assignments))]
		for i := range batch {
			batch[i].RunID = id
		}
		const insertAssignments = `INSERT INTO run_assignments (run_id, requester_id, label, slot, rank, size, score)
VALUES (:run_id, :requester_id, :label, :slot, :rank, :size, :score)`
		if _, err := tx.NamedExecContext(ctx, insertAssignments, batch); err != nil {
			return fmt.Errorf("insert run assignments: %w", err)
		}
	}
	if len(slots) > 0 {
		for i := range slots {
			slots[i].RunID = id
		}
		const insertSlots = `INSERT INTO run_slots (run_id, slot, open, occupancy, groups, min_occupancy, max_occupancy)
VALUES (:run_id, :slot, :open, :occupancy, :groups, :min_occupancy, :max_occupancy)`
		if _, err := tx.NamedExecContext(ctx, insertSlots, slots); err != nil {
			return fmt.Errorf("insert run slots: %w", err)
		}
	}

	set, args := params.assignments()
	if len(set) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE solve_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)+1)
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update solve run: %w", err)
	}
	return nil
}

// ListAssignments returns every requester of a run in id order.
func (r *RunRepository) ListAssignments(ctx context.Context, runID string) ([]models.RunAssignment, error) {
	const query = `SELECT run_id, requester_id, label, slot, rank, size, score FROM run_assignments WHERE run_id = $1 ORDER BY requester_id`
	var rows []models.RunAssignment
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list run assignments: %w", err)
	}
	return rows, nil
}

// ListSlots returns the slot states of a run in slot order.
func (r *RunRepository) ListSlots(ctx context.Context, runID string) ([]models.RunSlot, error) {
	const query = `SELECT run_id, slot, open, occupancy, groups, min_occupancy, max_occupancy FROM run_slots WHERE run_id = $1 ORDER BY slot`
	var rows []models.RunSlot
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list run slots: %w", err)
	}
	return rows, nil
}

// List returns runs newest first with the total matching count.
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.SolveRun, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM solve_runs WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, runColumns, where, size, offset)
	var runs []models.SolveRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list solve runs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM solve_runs WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count solve runs: %w", err)
	}
	return runs, total, nil
}

// ListPending fetches queued and running runs for cold start recovery.
func (r *RunRepository) ListPending(ctx context.Context, limit int) ([]models.SolveRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM solve_runs WHERE status IN ('QUEUED', 'RUNNING') ORDER BY created_at ASC LIMIT $1`
	var runs []models.SolveRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list pending solve runs: %w", err)
	}
	return runs, nil
}

// DeleteFinishedBefore removes terminal runs older than cutoff. Results go
// with them through the foreign key cascade.
func (r *RunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM solve_runs WHERE finished_at IS NOT NULL AND finished_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished solve runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete finished solve runs: %w", err)
	}
	return n, nil
}
