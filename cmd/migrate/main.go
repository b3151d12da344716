package main

// Run database migrations:
//   go run ./cmd/migrate [--database-url postgres://...] [up|up-by-one|down|status|version]

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/storage/db"
	"esign-backend/internal/shared/telemetry"
)

func main() {
	fs := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	fs.String("database-url", "", "postgres connection string (DATABASE_URL)")
	fs.Usage = func() {
		os.Stderr.WriteString("usage: migrate [flags] [" + strings.Join(db.MigrateCommands, "|") + "]\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	command := "up"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	cfg := config.LoadWithFlags(fs)
	ctx := context.Background()
	defer telemetry.Sync()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		telemetry.Sync()
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, command); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"command": command, "error": err})
		telemetry.Sync()
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"command": command})
}
