package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"moneta/internal/cli"
	apphttp "moneta/internal/http"
	"moneta/internal/log"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the JSON API with the in-process sync processor",
		Example: "\n  moneta serve",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, logger := current.cfg, current.logger

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	srv := apphttp.NewServer(":"+cfg.Port, app.Expenses, app.Settings, app.Processor, logger.WithComponent(log.ComponentHTTP))
	app.Caches.Register("overview", srv.OverviewCache())

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout+processorStopGrace, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if err := app.Close(); err != nil {
			logger.Error("Cleanup error", log.FieldError, err.Error())
		}
	})

	if err := app.StartBackground(ctx); err != nil {
		app.Close()
		return err
	}

	logger.Info("Starting moneta server",
		"port", cfg.Port,
		"backend", cfg.CloudBackend,
		"amqp", app.AMQP != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.Close()
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}
