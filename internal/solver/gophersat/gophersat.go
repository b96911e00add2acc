// Package gophersat solves binary programs with the pure-Go pseudo-boolean
// engine github.com/crillab/gophersat.
//
// Every row is rewritten as Σ w·l >= n over positive integer weights w and
// literals l, negating a variable wherever its coefficient is negative. The
// objective becomes a non-negative cost over literals. Coefficients must be
// integral once multiplied by the configured score scale.
package gophersat

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	gsolver "github.com/crillab/gophersat/solver"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

const (
	integralTolerance = 1e-9
	defaultStopGrace  = 5 * time.Second
)

// Config tunes the backend.
type Config struct {
	// ScoreScale multiplies objective coefficients before rounding to integers.
	ScoreScale float64
	// StopGrace bounds how long Solve waits for the engine after asking it to stop.
	StopGrace time.Duration
	Logger    *zap.Logger
}

// Solver drives gophersat's optimiser.
type Solver struct {
	scale     float64
	grace     time.Duration
	logger    *zap.Logger
	newEngine func(*gsolver.Problem) engine
}

// engine is the part of *gsolver.Solver that Solve drives.
type engine interface {
	Optimal(results chan gsolver.Result, stop chan struct{}) gsolver.Result
	Model() []bool
}

// New constructs the backend.
func New(cfg Config) *Solver {
	if cfg.ScoreScale <= 0 {
		cfg.ScoreScale = 1
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Solver{
		scale:     cfg.ScoreScale,
		grace:     cfg.StopGrace,
		logger:    cfg.Logger,
		newEngine: func(p *gsolver.Problem) engine { return gsolver.New(p) },
	}
}

func (s *Solver) Name() string { return string(solver.KindGophersat) }

type encoding struct {
	problem *gsolver.Problem
	// offset converts an engine cost back into the minimisation objective.
	offset int
}

// incumbent tracks the best model the engine has streamed so far.
type incumbent struct {
	mu     sync.Mutex
	found  bool
	values milp.Assignment
	weight int
}

func (in *incumbent) offer(values milp.Assignment, weight int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.found && weight > in.weight {
		return
	}
	in.found, in.values, in.weight = true, values, weight
}

func (in *incumbent) best() (milp.Assignment, int, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.values, in.weight, in.found
}

// Solve encodes m and runs the optimiser until it proves optimality, finds the
// problem unsatisfiable or ctx ends. Improving models are collected while the
// engine runs, so an engine that does not honour the stop request within the
// grace period still yields its incumbent.
func (s *Solver) Solve(ctx context.Context, m *milp.Model) (*solver.Result, error) {
	start := time.Now()
	enc, err := s.encode(m)
	if err != nil {
		return &solver.Result{Status: solver.StatusEngineError, Engine: s.Name(), Elapsed: time.Since(start), Message: err.Error()}, nil
	}

	eng := s.newEngine(enc.problem)
	n := m.NumVars()
	stop := make(chan struct{})
	results := make(chan gsolver.Result, 16)
	done := make(chan gsolver.Result, 1)
	drained := make(chan struct{})
	var inc incumbent
	go func() {
		done <- eng.Optimal(results, stop)
	}()
	go func() {
		defer close(drained)
		for r := range results {
			if r.Status != gsolver.Sat {
				continue
			}
			if values, ok := decodeModel(r.Model, n); ok {
				inc.offer(values, r.Weight)
			}
		}
	}()

	var (
		res         gsolver.Result
		interrupted bool
	)
	select {
	case res = <-done:
	case <-ctx.Done():
		interrupted = true
		close(stop)
		select {
		case res = <-done:
			s.awaitDrain(drained)
		case <-time.After(s.grace):
			s.logger.Warn("gophersat ignored stop request", zap.Duration("grace", s.grace))
			return s.interruptedResult(ctx, m, enc, &inc, start), nil
		}
	}

	out := &solver.Result{Engine: s.Name()}
	switch {
	case res.Status == gsolver.Sat:
		values, err := s.values(eng, n)
		if err != nil {
			out.Status = solver.StatusEngineError
			out.Message = err.Error()
			break
		}
		out.Status = solver.StatusOptimal
		if interrupted {
			out.Status, out.Message = solver.Interrupted(ctx, true)
		}
		out.Values = values
		out.Objective = s.objective(m, enc, res.Weight)
	case interrupted:
		return s.interruptedResult(ctx, m, enc, &inc, start), nil
	case res.Status == gsolver.Unsat:
		out.Status = solver.StatusInfeasible
		out.Message = "problem is unsatisfiable"
	default:
		out.Status = solver.StatusEngineError
		out.Message = "engine stopped without a verdict"
	}
	out.Elapsed = time.Since(start)
	return out, nil
}

// awaitDrain waits for the collector to consume models sent before the engine
// returned. The engine closes the results channel before returning.
func (s *Solver) awaitDrain(drained <-chan struct{}) {
	select {
	case <-drained:
	case <-time.After(s.grace):
		s.logger.Warn("gophersat left its results channel open")
	}
}

// interruptedResult reports the streamed incumbent, if any, after ctx ended.
func (s *Solver) interruptedResult(ctx context.Context, m *milp.Model, enc *encoding, inc *incumbent, start time.Time) *solver.Result {
	out := &solver.Result{Engine: s.Name()}
	values, weight, ok := inc.best()
	out.Status, out.Message = solver.Interrupted(ctx, ok)
	if ok {
		out.Values = values
		out.Objective = s.objective(m, enc, weight)
	}
	out.Elapsed = time.Since(start)
	return out
}

// decodeModel reads a streamed model. Engines report either a positional
// slice or a map keyed by variable; integer keys are the 1-based ids used in
// the encoded constraints, gsolver.Var keys are 0-based.
func decodeModel(raw interface{}, n int) (milp.Assignment, bool) {
	rv := reflect.ValueOf(raw)
	if !rv.IsValid() {
		return nil, false
	}
	values := make(milp.Assignment, n)
	for v := 0; v < n; v++ {
		values[milp.VarID(v)] = false
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.Bool || rv.Len() < n {
			return nil, false
		}
		for v := 0; v < n; v++ {
			values[milp.VarID(v)] = rv.Index(v).Bool()
		}
		return values, true
	case reflect.Map:
		if rv.Type().Elem().Kind() != reflect.Bool {
			return nil, false
		}
		varType := reflect.TypeOf(gsolver.Var(0))
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key()
			if key.Kind() == reflect.Interface {
				key = key.Elem()
			}
			if !key.IsValid() {
				return nil, false
			}
			var idx int
			switch {
			case key.Type() == varType:
				idx = int(key.Int())
			case key.CanInt():
				idx = int(key.Int()) - 1
			default:
				return nil, false
			}
			if idx < 0 || idx >= n {
				continue
			}
			values[milp.VarID(idx)] = iter.Value().Bool()
		}
		return values, true
	default:
		return nil, false
	}
}

func (s *Solver) encode(m *milp.Model) (*encoding, error) {
	constrs := make([]gsolver.PBConstr, 0, len(m.Constraints)+1)
	used := make([]bool, m.NumVars())
	for _, c := range m.Constraints {
		weights := make([]int, len(c.Terms))
		for i, t := range c.Terms {
			w, err := integral(t.Coef)
			if err != nil {
				return nil, fmt.Errorf("constraint %s: %w", c.Name, err)
			}
			weights[i] = w
		}
		rhs, err := integral(c.RHS)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", c.Name, err)
		}
		switch c.Sense {
		case milp.GE:
			constrs = appendGtEq(constrs, used, c.Terms, weights, rhs, 1)
		case milp.LE:
			constrs = appendGtEq(constrs, used, c.Terms, weights, rhs, -1)
		case milp.EQ:
			constrs = appendGtEq(constrs, used, c.Terms, weights, rhs, 1)
			constrs = appendGtEq(constrs, used, c.Terms, weights, rhs, -1)
		default:
			return nil, fmt.Errorf("constraint %s: unknown sense", c.Name)
		}
	}
	// Variables no row mentions are declared with a tautology so the engine
	// still reports them.
	for v, ok := range used {
		if !ok {
			constrs = append(constrs, gsolver.GtEq([]int{v + 1, -(v + 1)}, nil, 1))
		}
	}

	problem := gsolver.ParsePBConstrs(constrs)

	sign := 1.0
	if m.Maximize {
		sign = -1.0
	}
	lits := make([]gsolver.Lit, 0, len(m.Objective))
	costs := make([]int, 0, len(m.Objective))
	offset := 0
	for _, t := range m.Objective {
		w, err := integral(sign * t.Coef * s.scale)
		if err != nil {
			return nil, fmt.Errorf("objective: %w (raise the score scale)", err)
		}
		if w == 0 {
			continue
		}
		lit := gsolver.IntToLit(int32(t.Var + 1))
		if w < 0 {
			lit = lit.Negation()
			offset += -w
			w = -w
		}
		lits = append(lits, lit)
		costs = append(costs, w)
	}
	if len(lits) > 0 {
		problem.SetCostFunc(lits, costs)
	}
	return &encoding{problem: problem, offset: offset}, nil
}

// appendGtEq adds dir·Σ w·x >= dir·rhs in normalised form. Rows that can no
// longer be violated are dropped.
func appendGtEq(constrs []gsolver.PBConstr, used []bool, terms []milp.Term, weights []int, rhs, dir int) []gsolver.PBConstr {
	lits := make([]int, 0, len(terms))
	ws := make([]int, 0, len(terms))
	n := dir * rhs
	for i, t := range terms {
		w := dir * weights[i]
		if w == 0 {
			continue
		}
		lit := int(t.Var) + 1
		if w < 0 {
			lit = -lit
			n += -w
			w = -w
		}
		lits = append(lits, lit)
		ws = append(ws, w)
	}
	if n <= 0 {
		return constrs
	}
	for _, t := range terms {
		used[t.Var] = true
	}
	return append(constrs, gsolver.GtEq(lits, ws, n))
}

func (s *Solver) values(eng engine, n int) (values milp.Assignment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read model: %v", r)
		}
	}()
	model := eng.Model()
	values = make(milp.Assignment, n)
	for v := 0; v < n; v++ {
		values[milp.VarID(v)] = v < len(model) && model[v]
	}
	return values, nil
}

func (s *Solver) objective(m *milp.Model, enc *encoding, cost int) float64 {
	minimised := float64(cost-enc.offset) / s.scale
	if m.Maximize {
		return -minimised
	}
	return minimised
}

func integral(f float64) (int, error) {
	r := math.Round(f)
	if math.Abs(f-r) > integralTolerance || math.Abs(r) > math.MaxInt32 {
		return 0, fmt.Errorf("coefficient %v is not a representable integer", f)
	}
	return int(r), nil
}
