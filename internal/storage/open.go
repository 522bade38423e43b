package storage

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a backend.
type Config struct {
	// Driver is one of "memory", "postgres" or "sqlite".
	Driver string

	// DSN is the PostgreSQL connection string or the SQLite file path.
	DSN string

	// Fixtures optionally seeds the memory backend at startup.
	Fixtures string

	Pool *SQLConfig
}

// Open creates the configured store set.
func Open(ctx context.Context, cfg Config) (StoreSet, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		set := NewMemoryStores()
		if cfg.Fixtures != "" {
			fx, err := LoadFixtures(cfg.Fixtures)
			if err != nil {
				return StoreSet{}, err
			}
			if _, err := Seed(ctx, set, fx); err != nil {
				return StoreSet{}, fmt.Errorf("seed memory store: %w", err)
			}
		}
		return set, nil
	case "postgres", "postgresql":
		return NewPostgresStoresFromDSN(cfg.DSN, cfg.Pool)
	case "sqlite", "sqlite3":
		return NewSQLiteStores(cfg.DSN, cfg.Pool)
	default:
		return StoreSet{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
