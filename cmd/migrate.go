package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cormorant-ai/cormorant/db"
	"github.com/cormorant-ai/cormorant/internal/config"
	"github.com/cormorant-ai/cormorant/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations",
	Long: `Applies all pending schema migrations to the configured PostgreSQL
database. Migrations are embedded in the binary; the command is a no-op when
the schema is already current.

Requires storage_backend=postgres (or DATABASE_URL).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.StorageBackend != config.StoragePostgres {
		return fmt.Errorf("migrate requires storage_backend=%s, configured backend is %q",
			config.StoragePostgres, cfg.StorageBackend)
	}

	logger := log.New(log.Config{})
	if err := db.Migrate(cfg.PostgresDSN(), logger); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
