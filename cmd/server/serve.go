package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"visionengine/internal/app"
)

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP detection server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			log := newLogger(cfg)

			application, err := app.NewApp(cfg, log)
			if err != nil {
				log.Error("Failed to start: %v", err)
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8000, "Port to listen on (overrides PORT)")
	return cmd
}
