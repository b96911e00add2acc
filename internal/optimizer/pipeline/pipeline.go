// Package pipeline runs one solve cycle: index the preferences, build the
// sparse model, hand it to an engine, then decode and verify the answer.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/bound"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/builder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/decoder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

// Kind discriminates the outcome of a run.
type Kind string

const (
	KindSolved        Kind = "solved"
	KindNoAssignments Kind = "no_assignments"
	KindInfeasible    Kind = "infeasible_model"
	KindEngineError   Kind = "engine_error"
)

// Stats describes the size of the built model.
type Stats struct {
	Requesters  int `json:"requesters"`
	Edges       int `json:"edges"`
	Slots       int `json:"slots"`
	Variables   int `json:"variables"`
	Constraints int `json:"constraints"`
}

// Outcome is the discriminated result of Run. Solution is set for
// KindSolved and KindNoAssignments only.
type Outcome struct {
	Kind        Kind
	Status      solver.Status
	Engine      string
	Message     string
	Fingerprint milp.Fingerprint
	Stats       Stats
	Solution    *decoder.Solution
	Bound       *bound.Bound
	Gap         *float64
	Elapsed     time.Duration
}

// Objective returns the decoded satisfaction, or 0 without a solution.
func (o *Outcome) Objective() float64 {
	if o.Solution == nil {
		return 0
	}
	return o.Solution.Satisfaction
}

// Config wires a Pipeline.
type Config struct {
	Solver    solver.Solver
	Logger    *zap.Logger
	Workers   int
	ModelName string
	// Tolerance is the absolute objective cross-check tolerance.
	Tolerance float64
	// BoundMaxVars caps the relaxation size; negative disables the bound.
	BoundMaxVars int
}

// Pipeline is safe for concurrent use when its Solver is.
type Pipeline struct {
	solver    solver.Solver
	logger    *zap.Logger
	workers   int
	name      string
	tolerance float64
	boundMax  int
}

// ErrNoSolver is returned by New without an engine.
var ErrNoSolver = errors.New("pipeline requires a solver")

func New(cfg Config) (*Pipeline, error) {
	if cfg.Solver == nil {
		return nil, ErrNoSolver
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = decoder.DefaultAbsTolerance
	}
	return &Pipeline{
		solver:    cfg.Solver,
		logger:    cfg.Logger,
		workers:   cfg.Workers,
		name:      cfg.ModelName,
		tolerance: cfg.Tolerance,
		boundMax:  cfg.BoundMaxVars,
	}, nil
}

// Engine returns the name of the configured engine.
func (p *Pipeline) Engine() string { return p.solver.Name() }

// Run validates records against pol and solves them. Malformed input, model
// construction failures and integrity violations are returned as errors;
// every engine verdict is an Outcome.
func (p *Pipeline) Run(ctx context.Context, records []preference.Record, pol policy.Policy) (*Outcome, error) {
	idx, err := preference.Build(records, pol)
	if err != nil {
		return nil, err
	}
	return p.RunIndex(ctx, idx, pol)
}

// RunIndex solves an already built index.
func (p *Pipeline) RunIndex(ctx context.Context, idx *preference.Index, pol policy.Policy) (*Outcome, error) {
	f, err := p.Build(idx, pol)
	if err != nil {
		return nil, err
	}
	return p.Solve(ctx, f)
}

// Solve hands a built formulation to the engine and decodes the answer.
// Callers that need the fingerprint before solving build with Build first.
func (p *Pipeline) Solve(ctx context.Context, f *builder.Formulation) (*Outcome, error) {
	start := time.Now()
	m := f.Model
	out := &Outcome{
		Engine:      p.solver.Name(),
		Fingerprint: m.Fingerprint(),
		Stats: Stats{
			Requesters:  f.Index.Len(),
			Edges:       f.Index.EdgeCount(),
			Slots:       f.Policy.NumSlots(),
			Variables:   m.NumVars(),
			Constraints: len(m.Constraints),
		},
	}
	log := p.logger.With(
		zap.String("fingerprint", out.Fingerprint.String()),
		zap.String("engine", out.Engine),
	)
	log.Debug("model built",
		zap.Int("requesters", out.Stats.Requesters),
		zap.Int("edges", out.Stats.Edges),
		zap.Int("slots", out.Stats.Slots),
		zap.Int("constraints", out.Stats.Constraints),
	)

	res, err := p.solver.Solve(ctx, m)
	switch {
	case err != nil:
		out.Kind = KindEngineError
		out.Status = solver.StatusEngineError
		out.Message = err.Error()
	case res == nil:
		out.Kind = KindEngineError
		out.Status = solver.StatusEngineError
		out.Message = "engine returned no result"
	default:
		out.Status = res.Status
		out.Message = res.Message
		if res.Engine != "" {
			out.Engine = res.Engine
		}
		if err := p.settle(ctx, f, res, out, log); err != nil {
			log.Error("solution rejected", zap.Error(err))
			return nil, err
		}
	}
	out.Elapsed = time.Since(start)

	log.Info("pipeline finished",
		zap.String("kind", string(out.Kind)),
		zap.String("status", out.Status.String()),
		zap.Float64("objective", out.Objective()),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}

// Build generates the formulation with the pipeline's settings.
func (p *Pipeline) Build(idx *preference.Index, pol policy.Policy) (*builder.Formulation, error) {
	var opts []builder.Option
	if p.name != "" {
		opts = append(opts, builder.WithName(p.name))
	}
	if p.workers > 0 {
		opts = append(opts, builder.WithWorkers(p.workers))
	}
	return builder.Build(idx, pol, opts...)
}

func (p *Pipeline) settle(ctx context.Context, f *builder.Formulation, res *solver.Result, out *Outcome, log *zap.Logger) error {
	switch res.Status {
	case solver.StatusInfeasible:
		out.Kind = KindInfeasible
		return nil
	case solver.StatusUnbounded, solver.StatusEngineError:
		out.Kind = KindEngineError
		return nil
	}

	sol, err := decoder.Decode(f, res, decoder.WithTolerance(p.tolerance, decoder.DefaultRelTolerance))
	if err != nil {
		return err
	}
	out.Solution = sol
	out.Kind = KindSolved
	if len(sol.Assignments) == 0 {
		out.Kind = KindNoAssignments
	}

	if p.boundMax < 0 {
		return nil
	}
	b, err := bound.Relax(context.WithoutCancel(ctx), f.Model, p.boundMax)
	if err != nil {
		log.Warn("relaxation bound unavailable", zap.Error(err))
		return nil
	}
	out.Bound = &b
	if gap, ok := bound.Gap(b, sol.Satisfaction); ok {
		out.Gap = &gap
	}
	return nil
}
