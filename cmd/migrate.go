package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/centrallog/internal/output"
	"github.com/telhawk-systems/centrallog/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, p, err := migrationTarget(cmd)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(conn); err != nil {
			return err
		}
		p.Success("Migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to drop the schema without --yes")
		}
		conn, p, err := migrationTarget(cmd)
		if err != nil {
			return err
		}
		if err := postgres.MigrateDown(conn); err != nil {
			return err
		}
		p.Success("Migrations rolled back")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, p, err := migrationTarget(cmd)
		if err != nil {
			return err
		}
		version, dirty, err := postgres.MigrationVersion(conn)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if p.Structured() {
			return p.Data(map[string]any{"version": version, "dirty": dirty})
		}
		p.Info("Schema version: %d", version)
		if dirty {
			p.Warn("Schema is dirty; a migration failed part way")
		}
		return nil
	},
}

func migrationTarget(cmd *cobra.Command) (string, *output.Printer, error) {
	p, err := printerFor(cmd)
	if err != nil {
		return "", nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	return cfg.Database.Postgres.ConnString(), p, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	migrateDownCmd.Flags().Bool("yes", false, "confirm dropping every table")
}
