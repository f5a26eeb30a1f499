package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Auth.FailedRedirectDelay != 3*time.Second {
		t.Errorf("expected 3s failure delay, got %s", cfg.Auth.FailedRedirectDelay)
	}
	if len(cfg.Auth.OAuthProviders) != 2 {
		t.Errorf("expected two default providers, got %v", cfg.Auth.OAuthProviders)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development by default")
	}
}

func TestLoad_TrimsTrailingSlashes(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://api.example.com/v1/")
	t.Setenv("BASE_URL", "http://localhost:8080/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "https://api.example.com/v1" {
		t.Errorf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
}

func TestLoad_ProductionRequiresHTTPS(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("BASE_URL", "http://example.com")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for plain http base url in production")
	}
	if !strings.Contains(err.Error(), "https") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_MalformedValue(t *testing.T) {
	t.Setenv("PORT", "not-an-int")

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Errorf("expected parse env prefix, got %v", err)
	}
}

func TestDSN_AppendsDefaultPort(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "u", Password: "p@ss", Name: "site"}
	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("expected default port in dsn, got %q", dsn)
	}

	d.URL = "override"
	if d.DSN() != "override" {
		t.Errorf("expected DATABASE_URL override")
	}
}

func TestLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		c := &Config{LogLevel: in}
		if got := c.Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
