package main

import (
	"os"
	"strings"

	"leadlynx/internal/config"
	"leadlynx/internal/version"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool

	cfg    *config.Config
	logger *pterm.Logger
)

var rootCmd = &cobra.Command{
	Use:     "leadlynx",
	Short:   "Visitor tracking and lead scoring service",
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		logger = newLogger(cfg.LogLevel, verbose)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file merged into the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func newLogger(level string, verbose bool) *pterm.Logger {
	logLevel := pterm.LogLevelInfo
	switch strings.ToLower(level) {
	case "trace":
		logLevel = pterm.LogLevelTrace
	case "debug":
		logLevel = pterm.LogLevelDebug
	case "warn", "warning":
		logLevel = pterm.LogLevelWarn
	case "error":
		logLevel = pterm.LogLevelError
	}
	if verbose && logLevel > pterm.LogLevelDebug {
		logLevel = pterm.LogLevelDebug
	}
	return pterm.DefaultLogger.WithLevel(logLevel)
}
