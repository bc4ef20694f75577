package cli

import (
	"context"
	"database/sql"
	"fmt"

	"VammLedger/internal/persistence"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back SQL migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			if err := m.Up(ctx); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			if err := m.Down(ctx); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			pending, err := m.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "up to date")
				return nil
			}
			for _, v := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending %s\n", v)
			}
			return nil
		})
	},
}

func withMigrator(ctx context.Context, fn func(context.Context, *persistence.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	return fn(ctx, persistence.NewMigrator(db, cfg.MigrationsDir))
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
