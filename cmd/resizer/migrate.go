package main

import (
	"github.com/glekoz/resize-service/data/db/migrations"
	"github.com/glekoz/resize-service/internal/config"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the posts table for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			ctx := cmd.Context()
			if err := migrations.Up(ctx, cfg.Postgres.DSN()); err != nil {
				logger.Error(ctx, "migration failed", "error", err)
				return err
			}
			logger.Info(ctx, "migrations applied", "db", cfg.Postgres.DB)
			return nil
		},
	}
}
