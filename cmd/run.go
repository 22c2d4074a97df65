package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dval/pipeline"
)

var runFlags evaluationFlags

func init() {
	rootCmd.AddCommand(runCmd)
	addEvaluationFlags(runCmd, &runFlags)
}

var runCmd = &cobra.Command{
	Use:     "run [valuation file]",
	Short:   "Evaluates a valuation model for a ticker",
	Long:    "Run fetches the data the model declares for the given ticker and evaluates the model once",
	Example: "dval run dcf.js -t AAPL -i '#_GROWTH=5&YEARS=10' --json",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readValuation(args[0])
		if err != nil {
			return err
		}

		overrides, err := pipeline.ParseOverrides(runFlags.overrides)
		if err != nil {
			return err
		}

		pb := newProgressBar(&runFlags)
		p, err := newPipeline(args[0], &runFlags, progressOf(pb))
		if err != nil {
			return err
		}

		result, err := p.Run(cmd.Context(), src, pipeline.Request{Ticker: runFlags.ticker, Overrides: overrides})
		if pb != nil {
			pb.Stop()
		}

		printOutcome(cmd.OutOrStdout(), result, err, runFlags.asJSON)
		if err != nil {
			os.Exit(1)
		}
		return nil
	},
}
