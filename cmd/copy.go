package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"dval/snippet"
)

func init() {
	rootCmd.AddCommand(copyCommand)
}

var copyCommand = &cobra.Command{
	Use:   "copy [valuation file]",
	Short: "Copies the rewritten model, as it would be evaluated, into your clipboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readValuation(args[0])
		if err != nil {
			return err
		}

		fn, err := snippet.Rewrite(src, snippetOptions(args[0]))
		if err != nil {
			return err
		}

		if err := clipboard.WriteAll(fn.Source); err != nil {
			return fmt.Errorf("unable to copy the model into your clipboard: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "📎 %s() has been copied into your clipboard\n", fn.Name)
		return nil
	},
}
