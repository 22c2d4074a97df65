package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dval/sandbox"
	"dval/utils"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of dval and of its helper library",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "dval version", utils.DvalVersion)
		fmt.Fprintln(cmd.OutOrStdout(), "helper library version", sandbox.HelperLibraryVersion)
	},
}
