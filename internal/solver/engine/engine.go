// Package engine constructs solver backends by name.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/solver"
	"github.com/noah-isme/workshop-scheduler/internal/solver/cbc"
	"github.com/noah-isme/workshop-scheduler/internal/solver/exhaustive"
	"github.com/noah-isme/workshop-scheduler/internal/solver/gophersat"
)

// Options are shared by all backends; each reads the fields it understands.
type Options struct {
	TimeLimit  time.Duration
	Gap        float64
	CBCPath    string
	WorkDir    string
	ScoreScale float64
	MaxVars    int
	Logger     *zap.Logger
	Observer   solver.Observer
}

// New returns the backend named kind, bounded by the time limit and instrumented.
func New(kind solver.Kind, opts Options) (solver.Solver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var s solver.Solver
	switch kind {
	case solver.KindGophersat, "":
		s = gophersat.New(gophersat.Config{ScoreScale: opts.ScoreScale, Logger: opts.Logger})
	case solver.KindCBC:
		s = cbc.New(cbc.Config{
			Path:      opts.CBCPath,
			TimeLimit: opts.TimeLimit,
			Gap:       opts.Gap,
			WorkDir:   opts.WorkDir,
			Logger:    opts.Logger,
		})
	case solver.KindExhaustive:
		s = exhaustive.New(opts.MaxVars)
	default:
		return nil, fmt.Errorf("unsupported solver engine: %q", kind)
	}
	return solver.Instrument(solver.WithTimeLimit(s, opts.TimeLimit), opts.Logger, opts.Observer), nil
}

// Kinds lists the engines New accepts.
func Kinds() []solver.Kind {
	return []solver.Kind{solver.KindGophersat, solver.KindCBC, solver.KindExhaustive}
}
