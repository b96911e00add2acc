// Package cbc drives the COIN-OR CBC command-line solver. The model is written
// in LP format to a scratch directory, cbc is run with a time limit and a
// relative gap, and the solution file it leaves behind is parsed.
package cbc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

const (
	DefaultTimeLimit = 450 * time.Second
	DefaultGap       = 0.01
)

// Runner executes the cbc binary. It is replaced in tests.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Config tunes the backend.
type Config struct {
	Path      string
	TimeLimit time.Duration
	Gap       float64
	WorkDir   string
	Logger    *zap.Logger
	Runner    Runner
}

// Solver shells out to cbc.
type Solver struct {
	cfg Config
}

// New constructs the backend.
func New(cfg Config) *Solver {
	if cfg.Path == "" {
		cfg.Path = "cbc"
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = DefaultTimeLimit
	}
	if cfg.Gap <= 0 {
		cfg.Gap = DefaultGap
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner
	}
	return &Solver{cfg: cfg}
}

func (s *Solver) Name() string { return string(solver.KindCBC) }

// Solve runs cbc on m. The engine's own time limit is the smaller of the
// configured limit and the context deadline, so an expiring context still lets
// cbc write its incumbent.
func (s *Solver) Solve(ctx context.Context, m *milp.Model) (*solver.Result, error) {
	start := time.Now()
	dir, err := os.MkdirTemp(s.cfg.WorkDir, "cbc-*")
	if err != nil {
		return nil, fmt.Errorf("create cbc work dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	if err := writeModel(lpPath, m); err != nil {
		return nil, err
	}

	limit := s.cfg.TimeLimit
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < limit {
			limit = remaining
		}
	}
	seconds := int(limit.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	// The process gets a little longer than its own limit to flush the solution.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), limit+10*time.Second)
	defer cancel()
	stopOnCancel := context.AfterFunc(ctx, func() {
		if ctx.Err() == context.Canceled {
			cancel()
		}
	})
	defer stopOnCancel()

	args := []string{
		"-sec", strconv.Itoa(seconds),
		"-ratio", strconv.FormatFloat(s.cfg.Gap, 'g', -1, 64),
		"-import", lpPath,
		"-solve",
		"-solu", solPath,
	}
	output, runErr := s.cfg.Runner(runCtx, s.cfg.Path, args...)
	s.cfg.Logger.Debug("cbc finished", zap.ByteString("output", tail(output, 2048)), zap.Error(runErr))

	f, err := os.Open(solPath)
	if err != nil {
		res := &solver.Result{Engine: s.Name(), Elapsed: time.Since(start)}
		switch {
		case ctx.Err() != nil:
			res.Status, res.Message = solver.Interrupted(ctx, false)
		case runErr != nil:
			res.Status, res.Message = solver.StatusEngineError, fmt.Sprintf("cbc failed: %v", runErr)
		default:
			res.Status, res.Message = solver.StatusEngineError, "cbc produced no solution file"
		}
		return res, nil
	}
	defer f.Close() //nolint:errcheck

	sol, err := ParseSolution(f)
	if err != nil {
		return &solver.Result{Status: solver.StatusEngineError, Engine: s.Name(), Elapsed: time.Since(start), Message: err.Error()}, nil
	}
	res := sol.Result(m)
	res.Engine = s.Name()
	res.Elapsed = time.Since(start)
	return res, nil
}

func writeModel(path string, m *milp.Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create lp file: %w", err)
	}
	if err := milp.WriteLP(f, m); err != nil {
		_ = f.Close()
		return fmt.Errorf("write lp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close lp file: %w", err)
	}
	return nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
