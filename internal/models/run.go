package models

import (
	"time"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
	"github.com/noah-isme/workshop-scheduler/internal/report"
)

// RunStatus captures the lifecycle of an asynchronous solve.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "QUEUED"
	RunStatusRunning       RunStatus = "RUNNING"
	RunStatusSolved        RunStatus = "SOLVED"
	RunStatusNoAssignments RunStatus = "NO_ASSIGNMENTS"
	RunStatusInfeasible    RunStatus = "INFEASIBLE"
	RunStatusEngineError   RunStatus = "ENGINE_ERROR"
	RunStatusFailed        RunStatus = "FAILED"
	RunStatusCancelled     RunStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning:
		return false
	}
	return true
}

// HasResult reports whether the run persisted assignments.
func (s RunStatus) HasResult() bool {
	return s == RunStatusSolved || s == RunStatusNoAssignments
}

// ParseRunStatus accepts the upper-case status names.
func ParseRunStatus(raw string) (RunStatus, bool) {
	s := RunStatus(raw)
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusSolved, RunStatusNoAssignments,
		RunStatusInfeasible, RunStatusEngineError, RunStatusFailed, RunStatusCancelled:
		return s, true
	}
	return "", false
}

// RunParams stores per-run engine options as JSONB.
type RunParams struct {
	TimeLimitSeconds int `json:"time_limit_seconds,omitempty"`
}

// SolveRun is a persisted asynchronous solve.
type SolveRun struct {
	ID           string                    `db:"id" json:"id"`
	Status       RunStatus                 `db:"status" json:"status"`
	Engine       string                    `db:"engine" json:"engine"`
	Outcome      *string                   `db:"outcome" json:"outcome,omitempty"`
	EngineStatus *string                   `db:"engine_status" json:"engine_status,omitempty"`
	Message      *string                   `db:"message" json:"message,omitempty"`
	Fingerprint  *string                   `db:"fingerprint" json:"fingerprint,omitempty"`
	Policy       JSON[policy.Spec]         `db:"policy" json:"policy"`
	Input        JSON[[]preference.Record] `db:"input" json:"-"`
	Params       JSON[RunParams]           `db:"params" json:"params"`
	Summary      JSON[*report.Summary]     `db:"summary" json:"summary"`
	Objective    *float64                  `db:"objective" json:"objective,omitempty"`
	Bound        *float64                  `db:"bound" json:"bound,omitempty"`
	Gap          *float64                  `db:"gap" json:"gap,omitempty"`
	RequestedBy  string                    `db:"requested_by" json:"requested_by"`
	CreatedAt    time.Time                 `db:"created_at" json:"created_at"`
	StartedAt    *time.Time                `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time                `db:"finished_at" json:"finished_at,omitempty"`
}

// RunAssignment is one requester's placement. Slot is nil when unassigned.
type RunAssignment struct {
	RunID       string  `db:"run_id" json:"-"`
	RequesterID int     `db:"requester_id" json:"requester_id"`
	Label       string  `db:"label" json:"label,omitempty"`
	Slot        *int    `db:"slot" json:"slot"`
	Rank        *int    `db:"rank" json:"rank,omitempty"`
	Size        int     `db:"size" json:"size"`
	Score       float64 `db:"score" json:"score"`
}

// RunSlot is the decoded state of one slot.
type RunSlot struct {
	RunID        string `db:"run_id" json:"-"`
	Slot         int    `db:"slot" json:"slot"`
	Open         bool   `db:"open" json:"open"`
	Occupancy    int    `db:"occupancy" json:"occupancy"`
	Groups       int    `db:"groups" json:"groups"`
	MinOccupancy int    `db:"min_occupancy" json:"min_occupancy"`
	MaxOccupancy int    `db:"max_occupancy" json:"max_occupancy"`
}

// RunFilter narrows run listings.
type RunFilter struct {
	Status      *RunStatus
	RequestedBy string
	Page        int
	PageSize    int
}

// ExportFormat enumerates downloadable artefacts of a run.
type ExportFormat string

const (
	// ExportFormatCSV is the submission file echoing the input rows.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatPDF is the occupancy report.
	ExportFormatPDF ExportFormat = "pdf"
	// ExportFormatSlots is the per-slot occupancy table as CSV.
	ExportFormatSlots ExportFormat = "slots"
)

// Valid reports whether f is supported.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatCSV, ExportFormatPDF, ExportFormatSlots:
		return true
	}
	return false
}
