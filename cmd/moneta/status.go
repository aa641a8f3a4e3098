package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show the sync preference and queue counters",
		Example: "\n  moneta status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	enabled, err := app.Settings.SyncEnabled(ctx)
	if err != nil {
		return fmt.Errorf("reading sync preference: %w", err)
	}
	stats, err := app.Processor.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading sync queue: %w", err)
	}

	if enabled {
		out.Successf("sync enabled (%s backend)\n", current.cfg.CloudBackend)
	} else {
		out.Warnf("sync disabled\n")
	}
	out.Plainf("queue: %d pending, %d processing, %d completed, %d failed\n",
		stats.Pending, stats.Processing, stats.Completed, stats.Failed)
	return nil
}
