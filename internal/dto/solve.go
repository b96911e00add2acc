package dto

import (
	"time"

	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
)

// ChoiceInput is one ranked slot. Score falls back to the configured rank table.
type ChoiceInput struct {
	Slot  int      `json:"slot"`
	Score *float64 `json:"score,omitempty"`
}

// RequesterInput describes one family and its ranked choices.
type RequesterInput struct {
	ID      int           `json:"id" validate:"min=0"`
	Label   string        `json:"label,omitempty" validate:"max=64"`
	Size    int           `json:"size"`
	Choices []ChoiceInput `json:"choices" validate:"dive"`
}

// PolicyInput overrides parts of the configured capacity policy.
type PolicyInput struct {
	MaxChoices   *int              `json:"maxChoices,omitempty" validate:"omitempty,min=1"`
	MinOccupancy *int              `json:"minOccupancy,omitempty" validate:"omitempty,min=1"`
	MaxOccupancy *int              `json:"maxOccupancy,omitempty" validate:"omitempty,min=1"`
	Slots        []int             `json:"slots,omitempty"`
	Overrides    []policy.Override `json:"overrides,omitempty"`
}

// SolveRequest captures POST /solve and POST /runs payloads.
type SolveRequest struct {
	Requesters       []RequesterInput `json:"requesters" validate:"dive"`
	Policy           *PolicyInput     `json:"policy,omitempty"`
	Engine           string           `json:"engine,omitempty" validate:"omitempty,oneof=gophersat cbc exhaustive"`
	TimeLimitSeconds int              `json:"timeLimitSeconds,omitempty" validate:"omitempty,min=1,max=3600"`
}

// AssignmentView is a placed requester.
type AssignmentView struct {
	RequesterID int     `json:"requesterId"`
	Label       string  `json:"label,omitempty"`
	Slot        int     `json:"slot"`
	Rank        int     `json:"rank"`
	Size        int     `json:"size"`
	Score       float64 `json:"score"`
}

// SlotView is the decoded state of a slot.
type SlotView struct {
	Slot         int  `json:"slot"`
	Open         bool `json:"open"`
	Occupancy    int  `json:"occupancy"`
	Groups       int  `json:"groups"`
	MinOccupancy int  `json:"minOccupancy"`
	MaxOccupancy int  `json:"maxOccupancy"`
}

// SolveResponse is the outcome of a synchronous solve.
type SolveResponse struct {
	Kind        pipeline.Kind    `json:"kind"`
	Status      string           `json:"status"`
	Engine      string           `json:"engine"`
	Message     string           `json:"message,omitempty"`
	Fingerprint string           `json:"fingerprint"`
	Stats       pipeline.Stats   `json:"stats"`
	Objective   float64          `json:"objective"`
	Bound       *float64         `json:"bound,omitempty"`
	Gap         *float64         `json:"gap,omitempty"`
	ElapsedMs   int64            `json:"elapsedMs"`
	Assignments []AssignmentView `json:"assignments"`
	Unassigned  []int            `json:"unassigned"`
	Slots       []SlotView       `json:"slots"`
	Cached      bool             `json:"cached"`
}

// RunCreatedResponse is returned after a run is queued.
type RunCreatedResponse struct {
	ID     string           `json:"id"`
	Status models.RunStatus `json:"status"`
}

// RunAssignmentsResponse lists the persisted result of a run.
type RunAssignmentsResponse struct {
	RunID       string                 `json:"runId"`
	Status      models.RunStatus       `json:"status"`
	Assignments []models.RunAssignment `json:"assignments"`
	Slots       []models.RunSlot       `json:"slots"`
}

// ExportRequest captures POST /runs/{id}/exports.
type ExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf slots"`
}

// ExportResponse carries the signed download link.
type ExportResponse struct {
	URL       string              `json:"url"`
	Format    models.ExportFormat `json:"format"`
	ExpiresAt time.Time           `json:"expiresAt"`
}
