// Command polymind runs the research-then-trade pipeline for prediction
// markets, either as a long-lived run-control server or as a one-shot run.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/polymind-ai/polymind/config"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig  string
	flagEnvFile string
)

func main() {
	root := &cobra.Command{
		Use:           "polymind",
		Short:         "research-then-trade pipeline for prediction markets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagEnvFile != "" {
				if err := godotenv.Load(flagEnvFile); err != nil {
					return fmt.Errorf("load env file %s: %w", flagEnvFile, err)
				}
			} else {
				// Best effort; a missing .env is fine.
				_ = godotenv.Load()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "path to .env file")

	root.AddCommand(newServeCmd(), newRunCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("polymind %s (%s)\n", version, commit)
		},
	}
}

func loadConfig() (*config.Config, error) {
	return config.NewLoader().WithConfigPath(flagConfig).Load()
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
