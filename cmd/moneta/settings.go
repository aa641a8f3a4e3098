package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change local preferences",
	}
	cmd.AddCommand(newSettingsSyncCmd())
	return cmd
}

func newSettingsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sync on|off",
		Short:     "Turn cloud sync on or off",
		Long:      "Turning sync on queues a push of the local user and categories.",
		Example:   "\n  moneta settings sync on",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			return runSettingsSync(cmd.Context(), enabled)
		},
	}
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q: must be on or off", s)
}

func runSettingsSync(ctx context.Context, enabled bool) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	id, err := app.Settings.SetSyncEnabled(ctx, enabled)
	if err != nil {
		return fmt.Errorf("updating sync preference: %w", err)
	}
	if !enabled {
		out.Successf("sync disabled\n")
		return nil
	}
	out.Successf("sync enabled\n")
	if id != "" {
		out.Infof("push queued as %s; run 'moneta worker' or 'moneta serve' to process it\n", id)
	}
	return nil
}
