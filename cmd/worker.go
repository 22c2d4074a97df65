package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dval/sandbox"
)

func init() {
	rootCmd.AddCommand(workerCmd)
}

// workerCmd evaluates one job read from stdin when models run with process
// isolation
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Evaluates one model sent on stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sandbox.ServeWorker(cmd.Context(), os.Stdin, os.Stdout)
	},
}
