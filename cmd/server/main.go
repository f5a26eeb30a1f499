// Package main is the entry point for the Meridian corporate site. It loads
// configuration, establishes Redis (and optionally MariaDB) connections,
// wires together all plugins, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianhq/corpweb/internal/app"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/config"
	"github.com/meridianhq/corpweb/internal/database"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Meridian corporate website",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg)
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Cancelled on SIGINT/SIGTERM so Docker restarts drain cleanly.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting corpweb",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	// --- Connect to Redis ---
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()
	slog.Info("connected to Redis")

	// --- Connect to MariaDB (audit log only) ---
	var application *app.App
	api := backend.New(cfg.Backend.URL, cfg.Backend.Timeout)
	if cfg.Auth.AuditEnabled {
		db, err := database.NewMariaDB(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to mariadb: %w", err)
		}
		defer db.Close()
		slog.Info("connected to MariaDB")

		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			return err
		}
		application = app.New(cfg, db, rdb, api)
	} else {
		application = app.New(cfg, nil, rdb, api)
	}

	if err := application.RegisterRoutes(ctx); err != nil {
		return fmt.Errorf("registering routes: %w", err)
	}

	// --- Graceful Shutdown ---
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Level()}

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
