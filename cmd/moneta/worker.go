package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"moneta/internal/cli"
	"moneta/internal/log"
	"moneta/internal/worker"
)

// processorStopGrace is how long shutdown waits for an in-flight sync run.
const processorStopGrace = 30 * time.Second

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued sync requests, woken by AMQP when configured",
		Long: `Runs the sync processor without the HTTP API. On start it queues an
ambient pull when sync is enabled and drains pending requests. With
AMQP_URL set it consumes sync request messages; otherwise it relies on
the poll interval.`,
		Example: "\n  moneta worker",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	cfg, logger := current.cfg, current.logger.WithComponent(log.ComponentWorker)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	ctx, done := cli.GracefulShutdown(logger, processorStopGrace, func() {
		if err := app.Close(); err != nil {
			logger.Error("Cleanup error", log.FieldError, err.Error())
		}
	})

	if err := app.StartBackground(ctx); err != nil {
		app.Close()
		return err
	}

	w := worker.NewSyncWorker(app.Processor, app.Settings, logger)
	logger.InfoContext(ctx, "Performing startup sync check")
	if err := w.StartupSyncCheck(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed startup sync check", log.FieldError, err.Error())
	}

	if app.AMQP != nil {
		go func() {
			if err := app.AMQP.ConsumeWithReconnect(ctx, w.HandleSyncRequested); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err.Error())
			}
		}()
		logger.InfoContext(ctx, "Consuming sync requests", "queue", cfg.AMQPQueue)
	} else {
		logger.InfoContext(ctx, "No AMQP broker configured, polling the queue",
			"interval", cfg.SyncPollInterval)
	}

	cli.WaitForShutdown(ctx, done)
	return nil
}
