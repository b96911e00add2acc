package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/workshop-scheduler/internal/loader"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/decoder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
)

type validateOptions struct {
	Submission string
	PolicyFile string
}

var validateOpts validateOptions

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a submission against the capacity policy",
	Long: `Reads a submission (a preference file with a solution column) and reports
every family placed outside its choices and every day outside its bounds.
Exits 1 when a violation is found.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWithEnv(cmd, func(e *env) int {
			return runValidate(e, validateOpts, cmd.OutOrStdout())
		})
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateOpts.Submission, "submission", "s", "", "Submission CSV")
	validateCmd.Flags().StringVar(&validateOpts.PolicyFile, "policy", "", "YAML policy file overriding POLICY_*")
	_ = validateCmd.MarkFlagRequired("submission")
	rootCmd.AddCommand(validateCmd)
}

type validateResult struct {
	Families     int      `json:"families"`
	Placed       int      `json:"placed"`
	Satisfaction float64  `json:"satisfaction"`
	OpenDays     int      `json:"openDays"`
	Violations   []string `json:"violations"`
}

func runValidate(e *env, opts validateOptions, w io.Writer) int {
	ds, err := loadDataset(opts.Submission)
	if err != nil {
		return fail(w, "read submission", err)
	}
	placed, err := ds.Placements()
	if err != nil {
		return fail(w, "read submission", err)
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
		return fail(w, "read submission", err)
	}
	idx, err := preference.Build(records, pol)
	if err != nil {
		return fail(w, "preferences", err)
	}

	audit := decoder.Audit(idx, pol, placed)
	res := validateResult{Families: len(ds.Rows), Placed: len(placed), Violations: []string{}}
	for id, slot := range placed {
		if score, ok := idx.Score(id, slot); ok {
			res.Satisfaction += score
		}
	}
	for _, st := range audit.Slots {
		if st.Open {
			res.OpenDays++
		}
	}
	for _, v := range audit.Violations {
		res.Violations = append(res.Violations, v.Err().Error())
	}

	if jsonOutput {
		_ = writeJSON(w, res)
	} else {
		fmt.Fprintf(w, "Families: %d, placed: %d, open days: %d, satisfaction: %.2f\n",
			res.Families, res.Placed, res.OpenDays, res.Satisfaction)
		for _, v := range res.Violations {
			fmt.Fprintf(w, "  - %s\n", v)
		}
		if len(res.Violations) == 0 {
			fmt.Fprintln(w, "Submission is valid")
		}
	}
	if len(res.Violations) > 0 {
		return ExitError
	}
	return ExitOK
}
