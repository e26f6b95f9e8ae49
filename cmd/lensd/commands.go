package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lens-backend/internal/app"
	"lens-backend/internal/config"
	"lens-backend/internal/di"
	"lens-backend/internal/store/postgres"
)

type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "lensd",
		Short:         "Lens community memory log backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.PathFromEnv(),
		"path to a YAML config file (env LENS_CONFIG)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSchemaCommand())
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and feed stream",
		Long: `Run the HTTP API and the websocket feed stream.

Configuration comes from code defaults, then the --config file, then LENS_*
environment variables. Example:
  LENS_SUPABASE_URL=https://abc.supabase.co LENS_SUPABASE_ANON_KEY=... lensd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer cleanup()
	defer container.Logger.Sync() //nolint:errcheck

	return app.New(container).Run(ctx)
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the Postgres DDL used by the postgres store driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema)
			return err
		},
	}
}
