package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if api.IsStructuredOutput() {
			return api.Output(version.Get())
		}
		fmt.Printf("examtile %s\n", version.GitRelease)
		fmt.Printf("  Go:     %s\n", version.GoInfo)
		fmt.Printf("  Commit: %s\n", version.GitCommit)
		fmt.Printf("  Date:   %s\n", version.GitCommitDate)
		return nil
	},
}
