package cli

import (
	"database/sql"
	"fmt"

	"VammLedger/internal/projection"

	"github.com/spf13/cobra"
)

var projectionsCmd = &cobra.Command{
	Use:   "projections",
	Short: "Maintain the read-model tables",
}

var rebuildBalancesCmd = &cobra.Command{
	Use:   "rebuild-balances",
	Short: "Recompute projected balances from the journal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		if err := projection.RebuildBalances(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "balances rebuilt")
		return nil
	},
}

func init() {
	projectionsCmd.AddCommand(rebuildBalancesCmd)
	rootCmd.AddCommand(projectionsCmd)
}
