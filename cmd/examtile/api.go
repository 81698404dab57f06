package main

import (
	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running examtile server via HTTP.

These commands require a running server (examtile serve).
Use --server to specify a custom server URL.

Examples:
  examtile api health                 # Check server health
  examtile api analyze exam.pdf       # Analyze a PDF on the server
  examtile api runs list              # List past runs
  examtile api runs calls <run-id>    # Inspect a run's inference calls`,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	for _, cmd := range endpoints.Registry(endpoints.Config{}).Commands(getServerURL) {
		apiCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(apiCmd)
}
