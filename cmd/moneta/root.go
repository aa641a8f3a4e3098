package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"moneta/internal/cli"
	"moneta/internal/config"
	"moneta/internal/log"
)

// env is populated by the root command before any subcommand runs.
type env struct {
	cfg    *config.Config
	logger *log.Logger
}

var current env

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "moneta",
		Short:         "Moneta - personal expenses with optional cloud sync",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			current = env{cfg: cfg, logger: cli.SetupLogger(cfg.LogLevel)}
			return nil
		},
	}
}

func register(root *cobra.Command, cmds ...*cobra.Command) {
	for _, c := range cmds {
		root.AddCommand(c)
	}
}

// openApp wires the services for a one-shot command. The caller closes it.
func openApp(ctx context.Context) (*cli.App, error) {
	app, err := cli.NewApp(ctx, current.cfg, current.logger.WithComponent(log.ComponentCLI))
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return app, nil
}
