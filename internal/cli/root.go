// Package cli provides the command-line interface for buildguard.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	apiURL  string
	verbose bool

	// Global config, logger and API client
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	apiClient  *api.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "buildguard",
	Short: "BuildGuard CI/build-analytics client",
	Long: `Buildguard is the terminal client for the BuildGuard build-analytics
backend. Connect repositories, configure feature extraction for ML training
datasets, upload and validate CSV build sources, and monitor pipeline and
scan execution.

All heavy lifting (repository sync, feature DAG computation, validation,
dataset splitting, security scanning) happens server-side; this client
orchestrates and observes it.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if apiURL != "" {
			cfg.APIURL = apiURL
		}

		level := cfg.LogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)

		apiClient = api.New(cfg.APIURL, cfg.Timeout)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// eventsEndpoint resolves the websocket endpoint, preferring the config
// override.
func eventsEndpoint() string {
	if cfg.EventsURL != "" {
		return cfg.EventsURL
	}
	return apiClient.EventsURL()
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
