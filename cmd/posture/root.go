package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/posture"
	"github.com/synqronlabs/posture/dns"
	"github.com/synqronlabs/posture/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "posture",
	Short: "Email authentication posture analyzer",
	Long: `Posture looks up the DMARC, SPF and DKIM records of a domain over
DNS-over-HTTPS, validates them, scores the result out of 100 and prints a
prioritized list of fixes.

Configuration is read from posture.yaml (or --config) and POSTURE_*
environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./posture.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	return cfg.Logger(os.Stderr)
}

func newChecker(logger *slog.Logger, metrics *dns.Metrics) (*posture.Checker, error) {
	checker, err := posture.New(cfg.Checker(logger, metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create checker: %w", err)
	}
	return checker, nil
}
