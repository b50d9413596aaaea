package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/repobrain/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "History database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all history and recreate the schema (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if force, _ := cmd.Flags().GetBool("force"); !force {
			return errors.New("refusing to reset without --force")
		}
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.Reset(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History reset.")
		return nil
	},
}

var dbPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs and scans older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return errors.New("--older-than must be positive")
		}
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := d.PruneBefore(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d row(s).\n", n)
		return nil
	},
}

// openDB opens and migrates the configured history DB, returning it with a
// cleanup func.
func openDB() (*db.DB, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.History.IsEnabled() {
		return nil, nil, errors.New("history is disabled (history.enabled: false)")
	}
	d, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func init() {
	dbResetCmd.Flags().Bool("force", false, "Confirm the reset")
	dbPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age cutoff")

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbCmd.AddCommand(dbPruneCmd)
}
