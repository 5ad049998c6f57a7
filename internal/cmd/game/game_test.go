package game

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected default store backend, got %q", cfg.StoreBackend)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Fatalf("expected default redis url, got %q", cfg.RedisURL)
	}
	if cfg.SQLitePath != "trlg-sessions.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLitePath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("TRLG_HTTP_ADDR", "env-addr")
	t.Setenv("TRLG_STORE_BACKEND", "redis")
	t.Setenv("TRLG_REDIS_URL", "redis://env-redis:6379")

	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-sqlite-path", "flag.db",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StoreBackend != "redis" {
		t.Fatalf("expected env store backend, got %q", cfg.StoreBackend)
	}
	if cfg.RedisURL != "redis://env-redis:6379" {
		t.Fatalf("expected env redis url, got %q", cfg.RedisURL)
	}
	if cfg.SQLitePath != "flag.db" {
		t.Fatalf("expected flag sqlite path, got %q", cfg.SQLitePath)
	}
}
