package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alex-user-go/fares/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fare search HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := app.NewLogger(cfg.Log, os.Stdout)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return app.Run(ctx, cfg, logger)
	},
}
