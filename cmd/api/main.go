package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"esign-backend/internal/bootstrap"
	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/server"
	"esign-backend/internal/shared/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	fs := pflag.NewFlagSet("api", pflag.ExitOnError)
	fs.String("port", "", "listen port (PORT)")
	fs.String("env", "", "environment: dev, staging or production (ENV)")
	fs.String("database-url", "", "postgres connection string (DATABASE_URL)")
	fs.String("object-store", "", "object store: local or s3 (OBJECT_STORE)")
	fs.String("notify-mode", "", "notification mode: log, ses or queue (NOTIFY_MODE)")
	_ = fs.Parse(os.Args[1:])

	cfg := config.LoadWithFlags(fs)
	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("api.bootstrap_failed", map[string]any{"error": err})
		telemetry.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		telemetry.Info("api.listening", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("api.server_error", map[string]any{"error": err})
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Error("api.shutdown_failed", map[string]any{"error": err})
	}
	if app.DB != nil {
		_ = app.DB.Close()
	}
	telemetry.Sync()
}
