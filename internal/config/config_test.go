package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configKeys = []string{
	"PORT", "LISTEN_ADDR", "DATABASE_PATH", "DATABASE_DRIVER", "CONTENT_ROOT",
	"SESSION_SECRET", "GIN_MODE", "ADMIN_USERNAME", "ADMIN_PASSWORD_HASH", "PAGE_SIZE",
	"CONTENT_WATCH", "VIEW_DEDUP_WINDOW", "REDIS_ADDR", "REDIS_PASSWORD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Port != "8080" || cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen defaults: %q %q", cfg.Port, cfg.ListenAddr)
	}
	if cfg.DatabasePath != "content/db.sqlite3" || cfg.DatabaseDriver != "sqlite3" {
		t.Fatalf("unexpected database defaults: %q %q", cfg.DatabasePath, cfg.DatabaseDriver)
	}
	if cfg.ContentRoot != "content/blog" {
		t.Fatalf("unexpected content root %q", cfg.ContentRoot)
	}
	if cfg.GinMode != "release" || cfg.AdminUsername != "admin" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PageSize != 10 || cfg.ContentWatch || cfg.ViewDedupWindow != 30*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", " sqlite ")
	t.Setenv("CONTENT_ROOT", "/srv/blog")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("CONTENT_WATCH", "true")
	t.Setenv("VIEW_DEDUP_WINDOW", "0")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Load()
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected listen addr from port, got %q", cfg.ListenAddr)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.ContentRoot != "/srv/blog" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.PageSize != 25 || !cfg.ContentWatch || cfg.ViewDedupWindow != 0 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAGE_SIZE", "-3")
	t.Setenv("VIEW_DEDUP_WINDOW", "soon")
	t.Setenv("CONTENT_WATCH", "maybe")

	cfg := Load()
	if cfg.PageSize != 10 || cfg.ViewDedupWindow != 30*time.Minute || cfg.ContentWatch {
		t.Fatalf("expected fallbacks for invalid values, got %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("CONTENT_ROOT")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CONTENT_ROOT=/from/dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CONTENT_ROOT") })

	if err := LoadEnvFile(envFile); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := Load().ContentRoot; got != "/from/dotenv" {
		t.Fatalf("expected content root from .env, got %q", got)
	}

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}
