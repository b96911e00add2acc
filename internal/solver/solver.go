// Package solver defines the boundary between the model builder and the
// integer-programming engines that solve its output.
//
// An engine receives an engine-neutral *milp.Model and returns a Result whose
// Status is one of Optimal, Feasible, Infeasible, Unbounded or EngineError.
// Values are present only for Optimal and Feasible. Engines may break ties
// between equally good solutions arbitrarily; callers must re-verify every
// returned assignment instead of trusting the status.
//
// A cancelled or expired context is not an error: an engine that holds an
// incumbent reports it as Feasible, one that does not reports EngineError.
// A non-nil error from Solve means the engine could not be driven at all.
package solver

import (
	"context"
	"time"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
)

// Status is the typed outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota + 1
	StatusFeasible
	StatusInfeasible
	StatusUnbounded
	StatusEngineError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusEngineError:
		return "engine_error"
	default:
		return "unknown"
	}
}

// HasSolution reports whether a Result with this status carries values.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Result is an engine's answer for one model.
type Result struct {
	Status    Status
	Values    milp.Assignment
	Objective float64
	Engine    string
	Elapsed   time.Duration
	Message   string
}

// Solver is implemented by every engine backend.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *milp.Model) (*Result, error)
}

// Kind names an engine backend.
type Kind string

const (
	KindGophersat  Kind = "gophersat"
	KindCBC        Kind = "cbc"
	KindExhaustive Kind = "exhaustive"
)

// Messages shared by engines for context-driven stops.
const (
	MsgTimeLimitNoIncumbent = "time limit reached without incumbent"
	MsgCancelledNoIncumbent = "cancelled without incumbent"
)

// Interrupted returns the status and message an engine reports when ctx
// stopped it, depending on whether it held an incumbent.
func Interrupted(ctx context.Context, hasIncumbent bool) (Status, string) {
	if hasIncumbent {
		if ctx.Err() == context.DeadlineExceeded {
			return StatusFeasible, "time limit reached"
		}
		return StatusFeasible, "cancelled"
	}
	if ctx.Err() == context.DeadlineExceeded {
		return StatusEngineError, MsgTimeLimitNoIncumbent
	}
	return StatusEngineError, MsgCancelledNoIncumbent
}
