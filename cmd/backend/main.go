package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"filevault/internal/db"
	"filevault/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	server.SetupLogging()

	addr := getenvDefault("FV_ADDR", ":8080")

	dsn := getenvDefault("DATABASE_URL", "")
	dbConn, err := server.OpenDB(dsn)
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	slog.Info("running migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}
	slog.Info("migrations complete")

	store, err := server.NewMinioStoreFromEnv()
	if err != nil {
		slog.Error("object storage init failed", "err", err)
		os.Exit(1)
	}

	sessions := server.NewSessionStore(dbConn)
	users := server.NewUserStore(dbConn)

	auth := server.AuthConfig{
		CookieName:    getenvDefault("FV_COOKIE_NAME", "fv_session"),
		Sessions:      sessions,
		Users:         users,
		SecureCookies: getenvDefault("FV_COOKIE_SECURE", "true") == "true",
	}

	var origins []string
	if raw := os.Getenv("FV_ALLOWED_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}

	srv := server.New(server.Config{
		Addr:           addr,
		DB:             dbConn,
		Store:          store,
		Auth:           auth,
		AllowedOrigins: origins,
	})

	// Background session expiry sweep, stopped on shutdown.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.StartSweeper(sweepCtx)

	// Start the HTTP server in a background goroutine so we can listen
	// for OS signals while it runs.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting", "addr", addr)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		stopSweep()
		// Give the server 5 seconds to finish in-flight requests.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "err", err)
			os.Exit(1)
		}
		slog.Info("shutdown complete")
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

// getenvDefault reads an environment variable and returns a default
// value if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
