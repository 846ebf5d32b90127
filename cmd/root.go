// Package cmd defines and implements the CLI commands for the statscrape
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/config"
	"github.com/statforge/statscrape/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

// newRootCmd creates and configures the root command. Configuration is
// loaded before any subcommand runs so every command sees the same view.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statscrape",
		Short: "Resilient fetch-and-checkpoint engine for statistics sites",
		Long: `statscrape fetches HTML fixtures from a statistics site batch by batch,
checkpointing progress so interrupted runs resume where they left off. A
circuit breaker and per-status retry policy keep the scraper a polite guest
on the upstream site.`,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},

		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults apply without one)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newLoadCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
