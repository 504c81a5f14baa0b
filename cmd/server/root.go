package main

import (
	"github.com/spf13/cobra"

	"visionengine/internal/config"
	"visionengine/internal/logger"
)

var logLevel string

// newRootCommand builds the CLI. Without a subcommand it runs serve.
func newRootCommand(serve *cobra.Command, others ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "visionengine",
		Short: "Danger detection vision engine",
		Long: `Detects danger classes (fire, smoke, people) in images, uploaded videos,
YouTube videos and a live camera, streaming per frame results as server-sent events.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serve.SetContext(cmd.Context())
			return serve.RunE(serve, args)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warning, error)")

	root.AddCommand(serve)
	root.AddCommand(others...)
	return root
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig() *config.Config {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.NewLogger(cfg)
}
