package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bcromer77/prooftimelines/internal/infra/blob"
	"github.com/bcromer77/prooftimelines/internal/infra/db"
	httpinfra "github.com/bcromer77/prooftimelines/internal/infra/http"

	"github.com/spf13/cobra"
)

func newServeCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, closeLog := state.logger()
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := db.NewStore(cfg)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer store.Close()
			if cfg.AutoMigrate {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			}

			blobs, err := blob.NewStoreFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init blob store: %w", err)
			}

			srv, err := httpinfra.NewServer(ctx, cfg, store, blobs, logger)
			if err != nil {
				return err
			}
			logger.Info(ctx, "starting prooftimelines",
				"db_driver", cfg.DBDriver,
				"blob_backend", cfg.BlobBackend,
				"auth_mode", cfg.AuthMode,
			)
			return srv.Run(ctx)
		},
	}
}

func newMigrateCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.NewStore(state.cfg)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
