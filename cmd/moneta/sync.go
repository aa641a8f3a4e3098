package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"moneta/internal/services"
)

var syncExample = `
  # pull remote changes into the local store
  moneta sync

  # push the local user and categories to the cloud
  moneta sync --push`

func newSyncCmd() *cobra.Command {
	var push bool

	cmd := &cobra.Command{
		Use:     "sync",
		Short:   "Run a sync against the cloud backend now",
		Example: syncExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := services.ModePull
			if push {
				mode = services.ModePush
			}
			return runSync(cmd.Context(), mode)
		},
	}

	cmd.Flags().BoolVarP(&push, "push", "p", false, "push local data, overwriting the remote user")
	return cmd
}

func runSync(ctx context.Context, mode services.Mode) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	enabled, err := app.Settings.SyncEnabled(ctx)
	if err != nil {
		return fmt.Errorf("reading sync preference: %w", err)
	}
	if !enabled {
		return fmt.Errorf("%w: enable it with 'moneta settings sync on'", services.ErrSyncDisabled)
	}

	out.Infof("running %s sync against %s backend\n", mode, current.cfg.CloudBackend)
	report, err := app.Engine.Run(ctx, mode)
	printReport(out.w, report)
	if err != nil {
		return fmt.Errorf("%s sync: %w", mode, err)
	}
	out.Successf("sync complete in %s\n", report.Duration.Round(time.Millisecond))
	return nil
}

func printReport(w io.Writer, r services.Report) {
	p := &printer{w: w}
	printBranch(p, "users", r.Users)
	printBranch(p, "categories", r.Categories)
}

func printBranch(p *printer, name string, b services.BranchReport) {
	if b.Err != nil {
		p.Errorf("%s: %s\n", name, b.Err)
		return
	}
	line := fmt.Sprintf("%s: %d created, %d updated, %d pulled, %d skipped",
		name, b.Created, b.Updated, b.Pulled, b.Skipped)
	if b.Failed == 0 {
		p.Plainf("%s\n", line)
		return
	}
	p.Warnf("%s, %d failed\n", line, b.Failed)
	for _, err := range b.Errors {
		p.Plainf("  %s\n", err)
	}
}
