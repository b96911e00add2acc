package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/workshop-scheduler/internal/datagen"
	"github.com/noah-isme/workshop-scheduler/internal/loader"
)

type generateOptions struct {
	Output    string
	Families  int
	Mode      string
	Seed      int64
	Choices   int
	FirstSlot int
	LastSlot  int
}

var generateOpts generateOptions

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic family preference file",
	Long: `Writes a reproducible family preference file. Modes:
  uniform     choices spread over every day
  stressed    most choices land in the first quarter of the days
  blind_spot  the last 40% of the days are never requested`,
	Run: func(cmd *cobra.Command, args []string) {
		runWithEnv(cmd, func(e *env) int {
			return runGenerate(generateOpts, cmd.OutOrStdout())
		})
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOpts.Output, "output", "o", "-", "Output CSV, - for stdout")
	generateCmd.Flags().IntVar(&generateOpts.Families, "families", 5000, "Number of families")
	generateCmd.Flags().StringVar(&generateOpts.Mode, "mode", string(datagen.ModeStressed), "Demand pattern")
	generateCmd.Flags().Int64Var(&generateOpts.Seed, "seed", 1, "Random seed")
	generateCmd.Flags().IntVar(&generateOpts.Choices, "choices", 10, "Choices per family")
	generateCmd.Flags().IntVar(&generateOpts.FirstSlot, "first-day", 1, "First workshop day")
	generateCmd.Flags().IntVar(&generateOpts.LastSlot, "last-day", 100, "Last workshop day")
	rootCmd.AddCommand(generateCmd)
}

// runGenerate writes the dataset to opts.Output, or to w when the output is stdout.
func runGenerate(opts generateOptions, w io.Writer) int {
	ds, err := datagen.Generate(datagen.Options{
		Families:  opts.Families,
		Mode:      datagen.Mode(opts.Mode),
		Seed:      opts.Seed,
		Choices:   opts.Choices,
		FirstSlot: opts.FirstSlot,
		LastSlot:  opts.LastSlot,
	})
	if err != nil {
		return fail(w, "generate", err)
	}
	out, closeOut, err := openOutput(opts.Output, w)
	if err != nil {
		return fail(w, "open output", err)
	}
	if err := loader.Write(out, ds); err != nil {
		_ = closeOut()
		return fail(w, "write", err)
	}
	if err := closeOut(); err != nil {
		return fail(w, "write", err)
	}
	if out != w {
		if jsonOutput {
			_ = writeJSON(w, map[string]interface{}{
				"output": opts.Output, "families": len(ds.Rows), "people": datagen.People(ds),
			})
		} else {
			fmt.Fprintf(w, "Wrote %d families (%d people) to %s\n", len(ds.Rows), datagen.People(ds), opts.Output)
		}
	}
	return ExitOK
}
