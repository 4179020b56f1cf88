package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eduhub/internal/app"
	"eduhub/internal/logger"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			application, err := app.NewApplication(cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Start(ctx); err != nil {
				_ = application.Stop(context.Background())
				return err
			}

			serveErr := make(chan error, 1)
			go func() { serveErr <- application.Wait() }()

			var runErr error
			select {
			case <-ctx.Done():
				logger.L.Info("shutdown signal received")
			case runErr = <-serveErr:
				logger.L.Error("server stopped", slog.Any("error", runErr))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
			defer cancel()
			if err := application.Stop(shutdownCtx); err != nil && runErr == nil {
				runErr = fmt.Errorf("shutdown error: %w", err)
			}
			return runErr
		},
	}
}
