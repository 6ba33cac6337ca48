// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "vatflow",
	Short: "Validate sales data files and enrich them with VAT calculations",
	Long: `vatflow ingests tabular sales data (CSV, TSV or XLSX), reconciles
its headers against a canonical schema, validates each column, converts
amounts into the base currency using daily exchange rates and computes
VAT per row from a country and product-type rule table.

Rows without a matching VAT rule are set aside for manual review and
reported separately.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file to load before reading configuration")
}

// loadEnvironment merges the optional .env file into the process
// environment, then loads and validates configuration
func loadEnvironment() (*config.Config, *zap.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// A local .env is a convenience, not a requirement
		_ = godotenv.Load()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zc.Level = level

	return zc.Build()
}
