package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write a config file holding every setting with its default value.

Without a path the file is written to the home directory
(~/.examtile/config.yaml).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		path := h.ConfigPath()
		if len(args) == 1 {
			path = args[0]
		} else if err := h.EnsureExists(); err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h, newLogger())
		if err != nil {
			return err
		}
		cfg := *cm.Get()
		cfg.Providers = make(map[string]config.ProviderCfg, len(cm.Get().Providers))
		for name, p := range cm.Get().Providers {
			if p.APIKey != "" && config.ResolveEnvVars(p.APIKey) == p.APIKey {
				p.APIKey = "********"
			}
			cfg.Providers[name] = p
		}
		return api.Output(cfg)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateKey(args[0]); err != nil {
			return err
		}
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h, newLogger())
		if err != nil {
			return err
		}
		value, ok := cm.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown setting: %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the configuration can run an analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h, newLogger())
		if err != nil {
			return err
		}
		if err := cm.Get().Validate(); err != nil {
			return err
		}
		file := cm.ConfigFile()
		if file == "" {
			file = "defaults"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK (%s, provider %s)\n", file, cm.Get().Provider)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
