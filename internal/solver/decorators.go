package solver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
)

type timeLimited struct {
	Solver
	limit time.Duration
}

// WithTimeLimit bounds every Solve call of s by limit. A non-positive limit
// returns s unchanged.
func WithTimeLimit(s Solver, limit time.Duration) Solver {
	if limit <= 0 {
		return s
	}
	return &timeLimited{Solver: s, limit: limit}
}

func (t *timeLimited) Solve(ctx context.Context, m *milp.Model) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()
	return t.Solver.Solve(ctx, m)
}

// Observer receives one sample per finished solve.
type Observer interface {
	ObserveSolve(engine, status string, variables, constraints int, elapsed time.Duration)
}

type instrumented struct {
	Solver
	logger   *zap.Logger
	observer Observer
}

// Instrument logs and records every Solve call of s. Either collaborator may be nil.
func Instrument(s Solver, logger *zap.Logger, observer Observer) Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{Solver: s, logger: logger, observer: observer}
}

func (i *instrumented) Solve(ctx context.Context, m *milp.Model) (*Result, error) {
	start := time.Now()
	res, err := i.Solver.Solve(ctx, m)
	elapsed := time.Since(start)

	status := StatusEngineError
	if res != nil {
		status = res.Status
		if res.Elapsed == 0 {
			res.Elapsed = elapsed
		}
		if res.Engine == "" {
			res.Engine = i.Name()
		}
	}
	if i.observer != nil {
		i.observer.ObserveSolve(i.Name(), status.String(), m.NumVars(), len(m.Constraints), elapsed)
	}

	fields := []zap.Field{
		zap.String("engine", i.Name()),
		zap.String("status", status.String()),
		zap.Int("variables", m.NumVars()),
		zap.Int("constraints", len(m.Constraints)),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		i.logger.Error("solve failed", append(fields, zap.Error(err))...)
		return res, err
	}
	if res == nil {
		i.logger.Error("solve returned no result", fields...)
		return nil, fmt.Errorf("%s returned no result", i.Name())
	}
	if res.Message != "" {
		fields = append(fields, zap.String("message", res.Message))
	}
	i.logger.Info("solve finished", append(fields, zap.Float64("objective", res.Objective))...)
	return res, nil
}
