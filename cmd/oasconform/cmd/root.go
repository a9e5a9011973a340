package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/config"
	"github.com/solatis/oasconform/internal/core/logging"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:          "oasconform",
	Short:        "OpenAPI response conformance testing",
	Long:         `oasconform validates captured API responses against their OpenAPI specifications and consolidates the results into reports.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration with cmd's flags bound and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.With().Str("version", Version).Logger(), nil
}
