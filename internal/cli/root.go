// Package cli implements the workshopctl command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/loader"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/pkg/config"
	"github.com/noah-isme/workshop-scheduler/pkg/logger"
)

// Exit codes shared by the commands.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitNoAssignments = 2
	ExitInfeasible    = 3
	ExitEngineError   = 4
)

var (
	jsonOutput bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "workshopctl",
	Short: "Assign families to workshop days",
	Long: `workshopctl solves family/day assignment instances offline.

Defaults for the capacity policy, the engine and the score table are read from
the same environment as the API (POLICY_*, SOLVER_*, SCORE_TABLE).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level written to stderr (default warn)")
}

// env bundles what every command loads before running.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.NewCLI(logLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{cfg: cfg, logger: logr}, nil
}

// runWithEnv loads the environment and exits with the code fn returns.
func runWithEnv(cmd *cobra.Command, fn func(e *env) int) {
	e, err := loadEnv()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(ExitError)
	}
	code := fn(e)
	_ = e.logger.Sync()
	os.Exit(code)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func loadDataset(path string) (*loader.Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("an input file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loader.Read(f)
}

func loadPolicy(cfg *config.Config, path string) (policy.Policy, error) {
	if path != "" {
		return config.LoadPolicyFile(path, cfg.Policy.Spec())
	}
	return cfg.Policy.Build()
}
