package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dval/pipeline"
	"dval/snippet"
)

var extractAsJSON bool

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractAsJSON, "json", false, "Print the extraction as JSON")
}

type extraction struct {
	Dependencies []string      `json:"dependencies"`
	Parameters   []string      `json:"parameters"`
	Range        snippet.Range `json:"range"`
	Function     string        `json:"function"`
	Source       string        `json:"source"`
}

var extractCmd = &cobra.Command{
	Use:   "extract [valuation file]",
	Short: "Shows what dval finds in a valuation model without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readValuation(args[0])
		if err != nil {
			return err
		}

		prepared, err := pipeline.New(pipeline.Options{Snippet: snippetOptions(args[0])}).Prepare(src)
		if err != nil {
			return err
		}

		// The rewritten source is checked before it is shown, so a broken
		// model is reported here rather than on its first run
		if err := snippet.Validate(args[0], prepared.Function.Source); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if extractAsJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(extraction{
				Dependencies: prepared.Construct.Dependencies,
				Parameters:   prepared.Construct.Parameters,
				Range:        prepared.Construct.Range,
				Function:     prepared.Function.Name,
				Source:       prepared.Function.Source,
			})
		}

		fmt.Fprintf(out, "🔎 Construct at bytes %d-%d\n", prepared.Construct.Range.Start, prepared.Construct.Range.End)
		fmt.Fprintf(out, "   dependencies: %s\n", strings.Join(prepared.Construct.Dependencies, ", "))
		fmt.Fprintf(out, "   parameters:   %s\n", strings.Join(prepared.Construct.Parameters, ", "))
		fmt.Fprintf(out, "📜 %s()\n\n%s\n", prepared.Function.Name, prepared.Function.Source)
		return nil
	},
}
