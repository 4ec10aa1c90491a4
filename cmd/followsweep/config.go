package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"followsweep/pkg/config"
	"followsweep/pkg/settings"
	"followsweep/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage followsweep configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (FOLLOWSWEEP_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write the default configuration to followsweep.yaml, or to the path given
with --config, along with an empty filter settings file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "followsweep.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return err
	}
	ui.PrintSuccess("Configuration file created: " + path)

	if _, err := os.Stat(cfg.Settings.Path); os.IsNotExist(err) {
		if err := settings.Save(cfg.Settings.Path, settings.Settings{}); err != nil {
			return err
		}
		ui.PrintSuccess("Filter settings created: " + cfg.Settings.Path)
	}

	fmt.Fprintln(ui.Out, "\nNext steps:")
	fmt.Fprintln(ui.Out, "1. Store your session cookies with 'followsweep auth login'")
	fmt.Fprintln(ui.Out, "2. Run 'followsweep config validate --config "+path+"'")
	fmt.Fprintln(ui.Out, "3. Start collecting with 'followsweep collect'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Fprint(ui.Out, string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration has errors", err)
		return err
	}

	var warnings []string
	for _, dir := range []string{filepath.Dir(cfg.Store.Path), cfg.Export.Directory, cfg.Logging.Directory} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot create %s: %v", dir, err))
		}
	}
	if _, err := settings.Load(cfg.Settings.Path); err != nil {
		warnings = append(warnings, fmt.Sprintf("filter settings: %v", err))
	}

	for _, w := range warnings {
		ui.PrintWarning("  - " + w)
	}
	ui.PrintSuccess("Configuration is valid")

	fmt.Fprintln(ui.Out, "\nConfiguration summary:")
	fmt.Fprintf(ui.Out, "  Database: %s\n", cfg.Store.Path)
	fmt.Fprintf(ui.Out, "  Settings: %s\n", cfg.Settings.Path)
	fmt.Fprintf(ui.Out, "  Max stall retries: %d\n", cfg.Collection.MaxStallRetries)
	fmt.Fprintf(ui.Out, "  Rate-limit attempts: %d\n", cfg.RateLimit.MaxAttempts)
	fmt.Fprintf(ui.Out, "  API address: %s\n", cfg.Server.Addr)
	fmt.Fprintf(ui.Out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
