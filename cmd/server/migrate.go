package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/expense-router/internal/container"
	"github.com/garyjia/expense-router/migrations"
	"github.com/garyjia/expense-router/pkg/database"
	"github.com/garyjia/expense-router/pkg/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, db, err := openMigrator()
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := migrator.Up()
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", applied)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, db, err := openMigrator()
		if err != nil {
			return err
		}
		defer db.Close()

		statuses, err := migrator.Status()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, s := range statuses {
			applied := "pending"
			if s.AppliedAt != nil {
				applied = s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%03d\t%s\t%s\n", s.Version, s.Name, applied)
		}
		return w.Flush()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openMigrator() (*database.Migrator, *database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver != "sqlite" {
		return nil, nil, fmt.Errorf("migrations apply to the sqlite driver only, configured %q", cfg.Database.Driver)
	}

	logger := utils.NewCLILogger(cfg.Logger.Level)
	db, err := database.New(container.DatabaseConfig(cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	return database.NewMigrator(db, migrations.FS, logger), db, nil
}
