package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/loader"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/report"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	"github.com/noah-isme/workshop-scheduler/internal/solver/engine"
)

type solveOptions struct {
	Input      string
	Output     string
	Engine     string
	TimeLimit  time.Duration
	PolicyFile string
	Workers    int
}

var solveOpts solveOptions

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve an instance and write the submission",
	Long: `Reads a family preference file, solves the assignment model and writes the
input rows with a solution column. Families without a day are written as x.

Exit codes:
  0  Solved with at least one assignment
  1  Error (unreadable input, malformed preferences, invalid policy)
  2  Solved, but no family could be placed
  3  Model proven infeasible
  4  Engine error or time limit without a solution`,
	Run: func(cmd *cobra.Command, args []string) {
		runWithEnv(cmd, func(e *env) int {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSolve(ctx, e, solveOpts, cmd.OutOrStdout())
		})
	},
}

func init() {
	solveCmd.Flags().StringVarP(&solveOpts.Input, "input", "i", "", "Family preference CSV")
	solveCmd.Flags().StringVarP(&solveOpts.Output, "output", "o", "", "Submission CSV (omit to skip writing)")
	solveCmd.Flags().StringVar(&solveOpts.Engine, "engine", "", "Engine: gophersat, cbc or exhaustive (default SOLVER_ENGINE)")
	solveCmd.Flags().DurationVar(&solveOpts.TimeLimit, "time-limit", 0, "Engine time limit (default SOLVER_TIME_LIMIT)")
	solveCmd.Flags().StringVar(&solveOpts.PolicyFile, "policy", "", "YAML policy file overriding POLICY_*")
	solveCmd.Flags().IntVar(&solveOpts.Workers, "workers", 0, "Model build workers (default GOMAXPROCS)")
	_ = solveCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(ctx context.Context, e *env, opts solveOptions, w io.Writer) int {
	ds, err := loadDataset(opts.Input)
	if err != nil {
		return fail(w, "read input", err)
	}
	pol, err := loadPolicy(e.cfg, opts.PolicyFile)
	if err != nil {
		return fail(w, "policy", err)
	}
	scores, err := loader.ParseScoreTable(e.cfg.Solver.ScoreTable)
	if err != nil {
		return fail(w, "score table", err)
	}
	records, err := ds.Records(scores)
	if err != nil {
		return fail(w, "read input", err)
	}

	kind := solver.Kind(opts.Engine)
	if kind == "" {
		kind = solver.Kind(e.cfg.Solver.Engine)
	}
	timeLimit := opts.TimeLimit
	if timeLimit <= 0 {
		timeLimit = e.cfg.Solver.TimeLimit
	}
	s, err := engine.New(kind, engine.Options{
		TimeLimit:  timeLimit,
		Gap:        e.cfg.Solver.Gap,
		CBCPath:    e.cfg.Solver.CBCPath,
		WorkDir:    e.cfg.Solver.WorkDir,
		ScoreScale: e.cfg.Solver.ScoreScale,
		MaxVars:    e.cfg.Solver.BoundMaxVars,
		Logger:     e.logger,
	})
	if err != nil {
		return fail(w, "engine", err)
	}
	p, err := pipeline.New(pipeline.Config{
		Solver:       s,
		Logger:       e.logger,
		Workers:      opts.Workers,
		ModelName:    "workshop",
		Tolerance:    e.cfg.Solver.ObjectiveTolerance,
		BoundMaxVars: e.cfg.Solver.BoundMaxVars,
	})
	if err != nil {
		return fail(w, "pipeline", err)
	}

	out, err := p.Run(ctx, records, pol)
	if err != nil {
		return fail(w, "solve", err)
	}
	e.logger.Info("solve finished", zap.String("kind", string(out.Kind)), zap.String("engine", out.Engine),
		zap.Duration("elapsed", out.Elapsed))

	if out.Solution != nil && opts.Output != "" {
		placed := make(map[int]int, len(out.Solution.Assignments))
		for _, a := range out.Solution.Assignments {
			placed[a.RequesterID] = a.Slot
		}
		if err := writeSubmission(opts.Output, ds, placed); err != nil {
			return fail(w, "write submission", err)
		}
	}

	summary := report.Summarize(out)
	if jsonOutput {
		err = writeJSON(w, summary)
	} else {
		err = report.Render(w, summary)
		if err == nil && out.Message != "" {
			_, err = fmt.Fprintf(w, "%s\n", out.Message)
		}
	}
	if err != nil {
		return fail(w, "write report", err)
	}
	return exitCode(out.Kind)
}

func writeSubmission(path string, ds *loader.Dataset, placed map[int]int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := loader.WriteSubmission(f, ds, placed); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exitCode(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindSolved:
		return ExitOK
	case pipeline.KindNoAssignments:
		return ExitNoAssignments
	case pipeline.KindInfeasible:
		return ExitInfeasible
	default:
		return ExitEngineError
	}
}

func fail(w io.Writer, step string, err error) int {
	fmt.Fprintf(w, "Error: %s: %v\n", step, err)
	return ExitError
}
