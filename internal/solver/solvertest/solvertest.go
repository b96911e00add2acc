// Package solvertest provides scripted engines for exercising callers of
// solver.Solver without a real engine.
package solvertest

import (
	"context"
	"sync"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

// Scripted returns whatever its Respond func produces and records each model.
type Scripted struct {
	Engine  string
	Respond func(ctx context.Context, m *milp.Model) (*solver.Result, error)

	mu     sync.Mutex
	models []*milp.Model
}

func (s *Scripted) Name() string {
	if s.Engine == "" {
		return "scripted"
	}
	return s.Engine
}

func (s *Scripted) Solve(ctx context.Context, m *milp.Model) (*solver.Result, error) {
	s.mu.Lock()
	s.models = append(s.models, m)
	s.mu.Unlock()
	if s.Respond == nil {
		return &solver.Result{Status: solver.StatusEngineError, Message: "no response scripted"}, nil
	}
	return s.Respond(ctx, m)
}

// Calls returns how many models were submitted.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models)
}

// Last returns the most recent model, or nil.
func (s *Scripted) Last() *milp.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.models) == 0 {
		return nil
	}
	return s.models[len(s.models)-1]
}

// Fixed answers every model with status and the named variables set. The
// objective is computed from the model unless objective is non-nil.
func Fixed(status solver.Status, set []string, objective *float64) *Scripted {
	return &Scripted{Respond: func(ctx context.Context, m *milp.Model) (*solver.Result, error) {
		res := &solver.Result{Status: status}
		if !status.HasSolution() {
			return res, nil
		}
		names := make(map[string]bool, len(set))
		for _, n := range set {
			names[n] = true
		}
		res.Values = make(milp.Assignment, m.NumVars())
		for _, v := range m.Variables {
			res.Values[v.ID] = names[v.Name]
		}
		res.Objective = m.ObjectiveValue(res.Values)
		if objective != nil {
			res.Objective = *objective
		}
		return res, nil
	}}
}

// Blocking waits for ctx to end and then reports the interruption.
func Blocking() *Scripted {
	return &Scripted{Respond: func(ctx context.Context, m *milp.Model) (*solver.Result, error) {
		<-ctx.Done()
		status, msg := solver.Interrupted(ctx, false)
		return &solver.Result{Status: status, Message: msg}, nil
	}}
}
