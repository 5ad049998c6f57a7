// Package game parses game command flags and composes the session runtime
// entrypoint.
package game

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/Honey-Be/trlg-statemachine/internal/platform/cmd"
	"github.com/Honey-Be/trlg-statemachine/internal/server"
)

// Config holds game command configuration.
type Config struct {
	HTTPAddr     string `env:"TRLG_HTTP_ADDR"     envDefault:":8080"`
	StoreBackend string `env:"TRLG_STORE_BACKEND" envDefault:"memory"`
	RedisURL     string `env:"TRLG_REDIS_URL"     envDefault:"redis://localhost:6379"`
	SQLitePath   string `env:"TRLG_SQLITE_PATH"   envDefault:"trlg-sessions.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "game HTTP listen address")
	fs.StringVar(&cfg.StoreBackend, "store-backend", cfg.StoreBackend, "session document store backend (memory, redis, sqlite)")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis connection URL for the redis backend")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "database file path for the sqlite backend")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the game server and serves the realtime transport.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGame, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:     cfg.HTTPAddr,
			StoreBackend: cfg.StoreBackend,
			RedisURL:     cfg.RedisURL,
			SQLitePath:   cfg.SQLitePath,
		}); err != nil {
			return fmt.Errorf("serve game: %w", err)
		}
		return nil
	})
}
