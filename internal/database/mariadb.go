// Package database provides connection setup for MariaDB and Redis.
// Both connections are created once at startup and shared across the
// application via dependency injection. This package owns the connection
// lifecycle (open, configure pool, ping, close).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/meridianhq/corpweb/internal/config"
)

// pingAttempts bounds how long startup waits for MariaDB.
const pingAttempts = 10

// NewMariaDB creates a new MariaDB connection pool configured with the
// settings from the provided config. It pings the database to verify
// connectivity before returning.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	// Configure connection pool settings to prevent connection exhaustion
	// and stale connections under load.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// MariaDB may still be starting when the app container launches; retry
	// instead of crash-looping during Docker Compose cold starts.
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(pingAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("mariadb not ready, retrying...",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", pingAttempts),
				slog.Duration("backoff", next),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mariadb after %d attempts: %w", attempt, err)
	}

	return db, nil
}
