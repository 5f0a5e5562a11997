package kv

import (
	"context"
	"fmt"

	"docflow/pkg/config"
)

// Open builds the backend selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Cache.Backend)
	}
}
