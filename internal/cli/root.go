// Package cli holds the vammledger command tree.
package cli

import (
	"fmt"
	"os"

	"VammLedger/internal/config"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "vammledger",
	Short: "vammledger - virtual AMM perpetual futures ledger",
	Long: `vammledger runs the accounting core of a virtual-AMM perpetual futures
exchange: a constant-product reserve curve, LP shares with per-share
settlement, margin, funding, fees and an insurance vault, backed by a
hash-chained event log in Postgres.`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (YAML)")
}

// loadConfig loads the configuration named by --config and exports the
// log level so component loggers pick it up.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if os.Getenv("VAMM_LOG_LEVEL") == "" {
		_ = os.Setenv("VAMM_LOG_LEVEL", cfg.LogLevel)
	}
	return cfg, nil
}

// RootCommand exposes the command tree for embedding and tests.
func RootCommand() *cobra.Command {
	return rootCmd
}
