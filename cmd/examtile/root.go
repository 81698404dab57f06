package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/home"
	"github.com/examtile/examtile/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "examtile",
	Short: "Answer exam PDFs tile by tile with a multimodal model",
	Long: `examtile splits each page of an exam PDF into halves or quarters and
asks a multimodal model to solve the questions visible in each tile.

Tiles are sent one at a time with a minimum interval between requests so
free-tier quotas are respected. A failed tile is reported in place and the
rest of the document is still processed.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.examtile/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "examtile home directory (default: ~/.examtile)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := api.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		api.SetFormat(format)
		_, err = parseLevel(logLevel)
		return err
	}

	rootCmd.AddCommand(versionCmd)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("invalid --log-level %q", s)
	}
	return level, nil
}

// newLogger logs to stderr so stdout stays clean for results.
func newLogger() *slog.Logger {
	level, _ := parseLevel(logLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func getHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// loadConfig reads the config file (--config, ./config.yaml or the home
// directory's config.yaml) layered over defaults and EXAMTILE_ variables.
func loadConfig(h *home.Dir, logger *slog.Logger) (*config.Manager, error) {
	cm, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	cm.SetLogger(logger)
	return cm, nil
}
