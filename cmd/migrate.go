package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/frahmantamala/taxfree-console/db"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run the session store migrations (embedded, or from --dir)",
	}
	migrateRollback bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "", "sql migrations directory overriding the embedded ones")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(configDir)
	if err != nil {
		log.Fatal(err)
	}

	driver := sqlDriver(cfg.Database.Driver)
	if driver != "pgx" {
		return fmt.Errorf("migrate: %s session stores are created on server start", cfg.Database.Driver)
	}

	sqlDB, err := goose.OpenDBWithDriver(driver, cfg.Database.Source)
	if err != nil {
		log.Fatalf("goose: failed to open DB: %v\n", err)
	}
	defer sqlDB.Close()
	goose.SetTableName("schema_migrations")

	dir := "migrations"
	if migrateDir != "" {
		goose.SetBaseFS(os.DirFS(migrateDir))
		dir = "."
	} else {
		goose.SetBaseFS(db.Migrations)
	}

	command := "up"
	if migrateRollback {
		command = "down"
	}
	if err := goose.RunContext(ctx, command, sqlDB, dir); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}

	return nil
}
