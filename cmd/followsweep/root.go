package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"followsweep/pkg/config"
	"followsweep/pkg/logger"
	"followsweep/pkg/ui"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	accountName string
	dbPath      string
	settingsArg string
	headless    bool
	noNotify    bool
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "followsweep",
	Short: "Collect and clean up the followers of an account",
	Long: `followsweep walks the followers list of an account in a real browser,
stores every follower it sees in a local database and lets you filter,
export, remove or block them.

Features:
  - Resumable collection with end-of-list and rate-limit detection
  - Built-in and custom bio filters, reloaded when the settings file changes
  - CSV export of the collected followers
  - Operator HTTP API for driving collections remotely
  - Secure credential storage using the system keychain`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.Out = io.Discard
			return
		}
		switch cmd.Name() {
		case "version", "help", "completion", "show":
		default:
			ui.PrintLogo()
		}
	},
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default is ./.followsweep.yaml or ~/.config/followsweep/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&accountName, "account", "a", "", "stored account to use")
	pf.StringVar(&dbPath, "db", "", "follower database path")
	pf.StringVar(&settingsArg, "settings", "", "filter settings file")
	pf.BoolVar(&headless, "headless", true, "run the browser without a window")
	pf.BoolVar(&noNotify, "no-notifications", false, "disable desktop notifications")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress everything but errors")

	rootCmd.SetVersionTemplate(`followsweep {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the changed global flags over the configuration sources
// and initializes the logger.
func loadConfig(cmd *cobra.Command, overrides map[string]interface{}) (*config.Config, error) {
	flags := make(map[string]interface{})
	f := cmd.Flags()
	if f.Changed("headless") {
		flags["headless"] = headless
	}
	if dbPath != "" {
		flags["db"] = dbPath
	}
	if settingsArg != "" {
		flags["settings"] = settingsArg
	}
	if noNotify {
		flags["notifications"] = false
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	} else if quiet {
		flags["log-level"] = "error"
	}
	for k, v := range overrides {
		flags[k] = v
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithField("version", version).Debug("followsweep starting")
	return cfg, nil
}
