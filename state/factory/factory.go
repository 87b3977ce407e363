// Package factory builds the configured graph store.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PipeOpsHQ/segb/internal/config"
	"github.com/PipeOpsHQ/segb/state"
	"github.com/PipeOpsHQ/segb/state/hybrid"
	redisstore "github.com/PipeOpsHQ/segb/state/redis"
	sparqlstore "github.com/PipeOpsHQ/segb/state/sparql"
	sqlitestore "github.com/PipeOpsHQ/segb/state/sqlite"
)

func FromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (state.Store, error) {
	_ = ctx
	if logger == nil {
		logger = slog.Default()
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.State.Backend))
	switch backend {
	case "memory":
		return state.NewMemoryStore(), nil

	case "", "sqlite":
		return sqlitestore.New(cfg.State.SQLitePath)

	case "redis":
		return newRedisStore(cfg.Redis, 0)

	case "hybrid":
		durable, err := sqlitestore.New(cfg.State.SQLitePath)
		if err != nil {
			return nil, err
		}
		cache, err := newRedisStore(cfg.Redis, cfg.Redis.CacheTTL)
		if err != nil {
			logger.Warn("redis cache unavailable, hybrid store runs on sqlite only", "addr", cfg.Redis.Addr, "error", err)
			return hybrid.New(durable, nil, logger)
		}
		return hybrid.New(durable, cache, logger)

	case "sparql":
		return sparqlstore.New(cfg.SPARQL.StoreURL, cfg.SPARQL.Graph)

	default:
		return nil, fmt.Errorf("unsupported state backend %q (use sqlite, redis, hybrid, sparql, or memory)", backend)
	}
}

func newRedisStore(cfg config.RedisConfig, ttl time.Duration) (state.Store, error) {
	opts := []redisstore.Option{
		redisstore.WithPassword(cfg.Password),
		redisstore.WithDB(cfg.DB),
		redisstore.WithPrefix(cfg.Prefix),
		redisstore.WithTTL(ttl),
	}
	s, err := redisstore.New(cfg.Addr, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
