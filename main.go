package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shopassist/internal/config"
	"shopassist/internal/logging"
	"shopassist/internal/retry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "shopassist",
	Short:         "Furniture store support chatbot backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default $"+config.EnvConfigPath+" or ./config.json)")
	rootCmd.AddCommand(serveCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadRuntime reads the config and builds the logger every command needs.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.BasicConfig.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func retryPolicy(cfg *config.Config, logger *zap.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Agent.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Agent.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Agent.MaxDelayMS) * time.Millisecond,
		Logger:      logger,
	}
}
