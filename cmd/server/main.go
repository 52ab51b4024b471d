package main

import (
	"os"

	"hhfoundation/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  = "info"
	logFormat = "json"
)

var rootCmd = &cobra.Command{
	Use:   "hhfoundation",
	Short: "HH Foundation help platform backend",
	// serve is the default when no subcommand is given
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		logFormat = v
	}
	cobra.OnInitialize(setupLogger)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); HH_* env vars and .env override defaults")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logFormat, "json|pretty")
	rootCmd.AddCommand(serveCmd, migrateCmd, auditCmd)
}

func setupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if logFormat == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.DefaultContextLogger = &log.Logger
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
