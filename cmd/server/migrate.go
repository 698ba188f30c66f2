package main

import (
	"github.com/spf13/cobra"

	"buff/internal/adapters/storage"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations to the configured SQLite or PostgreSQL database.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.Println("Running migrations...")
	if cfg.DBDriver == "postgres" {
		if err := storage.MigratePostgres(cfg.DatabaseURL); err != nil {
			return err
		}
		cmd.Printf("Migrations completed (schema %d)\n", storage.LatestSchemaVersion())
		return nil
	}

	db, err := storage.OpenSQLite(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.MigrateSQLite(db); err != nil {
		return err
	}
	v, err := storage.SchemaVersion(db)
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed (schema %d)\n", v)
	return nil
}
