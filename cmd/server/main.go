package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tms/internal/config"
	"tms/internal/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "tms",
	Short:         "Dispatch lifecycle service for the transportation management system",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and TMS_ overrides, and builds the
// root logger from the result.
func loadConfig() (*config.Config, logger.Logger, error) {
	envFile, envErr := config.LoadDotEnvUp(6)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg, "tms")
	if envErr != nil {
		log.Warnf("failed to load %s: %v", envFile, envErr)
	} else if envFile != "" {
		log.Debugf("loaded environment from %s", envFile)
	}
	return cfg, log, nil
}

// newLogger builds a component logger honouring the log section of cfg.
func newLogger(cfg *config.Config, component string) logger.Logger {
	return logger.NewZerologLoggerWithOptions(component, logger.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console || strings.ToLower(os.Getenv("APP_ENV")) == "dev",
	})
}
