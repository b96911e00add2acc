// Package exhaustive solves tiny binary programs by enumerating every
// assignment. It is exact and deterministic, which makes it the reference
// engine for tests and for instances with a handful of variables.
package exhaustive

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

// DefaultMaxVars keeps enumeration below a few million assignments.
const DefaultMaxVars = 22

const (
	tolerance  = 1e-9
	checkEvery = 1 << 12
)

// Solver enumerates all 2^n assignments.
type Solver struct {
	maxVars int
}

// New returns an exhaustive solver refusing models above maxVars variables.
func New(maxVars int) *Solver {
	if maxVars <= 0 || maxVars > 30 {
		maxVars = DefaultMaxVars
	}
	return &Solver{maxVars: maxVars}
}

func (s *Solver) Name() string { return string(solver.KindExhaustive) }

// Solve returns the feasible assignment with the best objective; among ties the
// one with the smallest bit pattern wins.
func (s *Solver) Solve(ctx context.Context, m *milp.Model) (*solver.Result, error) {
	start := time.Now()
	n := m.NumVars()
	if n > s.maxVars {
		return &solver.Result{
			Status:  solver.StatusEngineError,
			Engine:  s.Name(),
			Elapsed: time.Since(start),
			Message: fmt.Sprintf("model has %d variables, exhaustive search is limited to %d", n, s.maxVars),
		}, nil
	}

	var (
		best      milp.Assignment
		bestValue float64
	)
	current := make(milp.Assignment, n)
	total := uint64(1) << uint(n)
	for mask := uint64(0); mask < total; mask++ {
		if mask%checkEvery == 0 && ctx.Err() != nil {
			status, msg := solver.Interrupted(ctx, best != nil)
			return s.result(status, msg, best, bestValue, start), nil
		}
		for v := 0; v < n; v++ {
			current[milp.VarID(v)] = mask&(1<<uint(v)) != 0
		}
		if _, ok := m.Feasible(current, tolerance); !ok {
			continue
		}
		value := m.ObjectiveValue(current)
		if best == nil || better(value, bestValue, m.Maximize) {
			best = clone(current)
			bestValue = value
		}
	}

	if best == nil {
		return s.result(solver.StatusInfeasible, "no feasible assignment", nil, 0, start), nil
	}
	return s.result(solver.StatusOptimal, "", best, bestValue, start), nil
}

func (s *Solver) result(status solver.Status, msg string, values milp.Assignment, objective float64, start time.Time) *solver.Result {
	res := &solver.Result{
		Status:  status,
		Engine:  s.Name(),
		Elapsed: time.Since(start),
		Message: msg,
	}
	if status.HasSolution() {
		res.Values = values
		res.Objective = objective
	}
	return res
}

func better(candidate, incumbent float64, maximize bool) bool {
	if maximize {
		return candidate > incumbent+tolerance
	}
	return candidate < incumbent-tolerance
}

func clone(a milp.Assignment) milp.Assignment {
	out := make(milp.Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
