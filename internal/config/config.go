// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Port is the HTTP listen port.
	Port int `env:"PORT" envDefault:"8080"`

	// BaseURL is the public-facing URL used for links and OAuth redirects.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	// TrustedProxies are the CIDRs whose X-Forwarded-For headers are
	// believed when resolving the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fd00::/8"`

	// CORSOrigins may call the JSON API from another origin. BASE_URL is
	// always allowed.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	// Backend holds settings for the REST API the site renders.
	Backend BackendConfig

	// Database holds MariaDB connection settings for the audit log.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig

	// Content holds remote collection settings.
	Content ContentConfig
}

// BackendConfig describes the external REST API.
type BackendConfig struct {
	// URL is the API base URL, e.g. "https://api.example.com/v1".
	URL string `env:"BACKEND_URL" envDefault:"http://localhost:5000/api"`

	// Timeout bounds every backend request.
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently. If DATABASE_URL
// is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format. If no port is
	// specified, 3306 is appended automatically.
	Host string `env:"DB_HOST" envDefault:"localhost:3306"`

	User     string `env:"DB_USER" envDefault:"meridian"`
	Password string `env:"DB_PASSWORD" envDefault:"meridian"`
	Name     string `env:"DB_NAME" envDefault:"meridian"`

	// URL bypasses the individual fields when set.
	URL string `env:"DATABASE_URL"`

	// MigrationsPath is the directory holding the golang-migrate files.
	MigrationsPath string `env:"DB_MIGRATIONS_PATH" envDefault:"db/migrations"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTL is how long sessions last before expiring. A shorter
	// expiry carried by the backend token wins.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// CookieName is the session cookie name.
	CookieName string `env:"SESSION_COOKIE" envDefault:"meridian_session"`

	// FailedRedirectDelay is how long the failure notice stays on screen
	// before the browser is sent back to the login page.
	FailedRedirectDelay time.Duration `env:"AUTH_FAILED_REDIRECT_DELAY" envDefault:"3s"`

	// OAuthProviders lists the identity providers offered on the login page.
	OAuthProviders []string `env:"OAUTH_PROVIDERS" envSeparator:"," envDefault:"google,microsoft"`

	// AuditEnabled turns on the MariaDB-backed auth event log.
	AuditEnabled bool `env:"AUDIT_ENABLED" envDefault:"false"`
}

// ContentConfig controls the remote collections behind the content pages.
type ContentConfig struct {
	// CacheTTL is how long successful loads are cached in Redis. Zero
	// disables the cache.
	CacheTTL time.Duration `env:"CONTENT_CACHE_TTL" envDefault:"2m"`

	// MaxTries bounds loader attempts per load, including the first.
	MaxTries uint `env:"CONTENT_MAX_TRIES" envDefault:"3"`
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if variables are malformed or production requirements are
// not met.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.IsProduction() {
		if !strings.HasPrefix(cfg.BaseURL, "https://") {
			return nil, fmt.Errorf("BASE_URL must use https in production")
		}
		if cfg.Auth.SessionTTL <= 0 {
			return nil, fmt.Errorf("SESSION_TTL must be positive")
		}
	}

	if cfg.Auth.FailedRedirectDelay < 0 {
		return nil, fmt.Errorf("AUTH_FAILED_REDIRECT_DELAY must not be negative")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and its common variants.
// Case-insensitive so "Production" and "prod" are caught too.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
