package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateCommands lists the goose commands the migrate CLI accepts.
var MigrateCommands = []string{"up", "up-by-one", "down", "status", "version"}

// RunMigrations applies all pending migrations. A nil database is a no-op so
// memory-backed dev runs can share the startup path.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return Migrate(ctx, database, "up")
}

// Migrate runs one goose command against the embedded schema: the users,
// documents, regions, signatures and usage tables.
func Migrate(ctx context.Context, database *sql.DB, command string) error {
	if !validMigrateCommand(command) {
		return fmt.Errorf("unknown migrate command %q", command)
	}
	if database == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.RunContext(ctx, command, database, "migrations")
}

func validMigrateCommand(command string) bool {
	for _, c := range MigrateCommands {
		if c == command {
			return true
		}
	}
	return false
}
