// Package main provides the CLI entrypoint for extanim.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/daemon"
	"github.com/jmylchreest/extanim/internal/display"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.DaemonConfig
	props      config.Properties
	globalOpts struct {
		verbose        bool
		configPath     string
		propertiesPath string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "extanim",
	Short: "Inspect and exercise the external-display animation gate",
	Long: `extanim inspects the configuration extanimd runs with and lets you
exercise its behavior offline.

It reads the same daemon config and property file as extanimd, classifies
display handles, shows the diagnostics journal and simulates rotation
transactions against an in-process compositor.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		cfg, err = config.LoadDaemonConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		props, err = config.LoadProperties(globalOpts.propertiesPath)
		if err != nil {
			logger.Warn("failed to load properties, features default to off", "error", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to daemon config (default: ~/.config/extanim/extanimd.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.propertiesPath, "properties", "",
		"Path to property file (default: ~/.config/extanim/properties.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// features returns the feature flags the daemon would start with.
func features() config.FeatureConfig {
	return config.LoadFeatures(props)
}

// classifier returns the classifier for the configured static layout.
func classifier() *display.Classifier {
	return display.NewClassifier(daemon.RangesFromConfig(cfg.Displays))
}
