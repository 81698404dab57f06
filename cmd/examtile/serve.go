package main

import (
	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/server"
)

var (
	serveHost  string
	servePort  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the examtile server",
	Long: `Start the examtile HTTP server.

Uploads are analyzed one at a time through a shared rate limiter, and results
stream back as newline-delimited JSON while the document is processed.
Config file edits are picked up without a restart.

The server provides:
  - POST /api/analyze - Analyze an uploaded PDF (NDJSON stream)
  - /health           - Basic server health check
  - /ready            - Readiness check (config, renderer, provider)
  - /api/status       - Version, provider and rate limiter state
  - /swagger          - API documentation

Examples:
  examtile serve                    # Start on server.port (default 8080)
  examtile serve --port 3000        # Start on custom port
  examtile serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		// Get home directory
		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := loadConfig(h, logger)
		if err != nil {
			return err
		}
		if serveWatch && cm.ConfigFile() != "" {
			cm.WatchConfig()
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload configuration when the config file changes")

	rootCmd.AddCommand(serveCmd)
}
