package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"tms/internal/app"
	"tms/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func init() {
	migrateCmd.AddCommand(
		migrationCommand("up", "Apply all pending migrations", migrations.Up),
		migrationCommand("down", "Roll back the latest migration", migrations.Down),
		migrationCommand("status", "Print the migration status", migrations.Status),
	)
	rootCmd.AddCommand(migrateCmd)
}

func migrationCommand(use, short string, run func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := app.NewDatabase(cmd.Context(), cfg.Database, nil)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := run(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			log.Infof("migrate %s finished", use)
			return nil
		},
	}
}
