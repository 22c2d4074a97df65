package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dval/config"
	"dval/logger"
	"dval/utils"
)

var rootCmd = &cobra.Command{
	Use:   "dval",
	Short: "Evaluates JavaScript valuation models against live financial data",
	Long: "dval finds the $.when(...).done(...) construct in a valuation model, fetches the data it declares, " +
		"and evaluates the model in a sandboxed JavaScript runtime with a hard time budget",
	Version:       utils.DvalVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Info commands and the worker don't need a project config
		switch cmd {
		case versionCmd, workerCmd, completionCmd:
			return nil
		}
		if cmd.Name() == "help" {
			return nil
		}

		return initDval()
	},
}

var (
	configPath string
	envPath    string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default dval.yml, optional)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "Path to the environment file (default .env, optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", err)
		os.Exit(1)
	}
}

func initDval() error {
	cfg, err := config.Read(configPath, envPath)
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	format := cfg.Logging.Format
	if logFormat != "" {
		format = logFormat
	}

	if err := logger.GetLogger().Configure(level, format, cfg.Logging.File, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("unable to configure logging: %w", err)
	}

	return nil
}
