package idstore

import (
	"context"
	"fmt"

	"github.com/openfast-rag/openfast-rag-backend/config"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.Path)
	case "bolt":
		return OpenBolt(cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	case "pgx":
		return OpenPgx(ctx, cfg.DSN, PoolOptions{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
