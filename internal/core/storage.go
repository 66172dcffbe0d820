package core

import (
	"context"
	"fmt"

	"handoff/internal/infra/persistence/memory"
	"handoff/internal/infra/persistence/postgres"
	"handoff/internal/infra/persistence/sqlite"
	"handoff/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the registry backend.
type StorageConfig struct {
	Driver      StorageDriver `toml:"driver" env:"DRIVER"`
	SQLitePath  string        `toml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string        `toml:"postgres_dsn" env:"POSTGRES_DSN"`
}

// OpenPersistentStore opens the backend named by cfg, defaulting to sqlite.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
