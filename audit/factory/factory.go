// Package factory builds the configured audit backend.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/segb/audit"
	neo4jaudit "github.com/PipeOpsHQ/segb/audit/neo4j"
	redisaudit "github.com/PipeOpsHQ/segb/audit/redis"
	sqliteaudit "github.com/PipeOpsHQ/segb/audit/sqlite"
	"github.com/PipeOpsHQ/segb/internal/config"
)

func FromConfig(ctx context.Context, cfg config.Config) (audit.Backend, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Audit.Backend))
	switch backend {
	case "memory":
		return audit.NewMemoryBackend(), nil

	case "", "sqlite":
		b, err := sqliteaudit.New(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, err
		}
		return b, nil

	case "redis":
		b, err := redisaudit.New(cfg.Redis.Addr,
			redisaudit.WithPassword(cfg.Redis.Password),
			redisaudit.WithDB(cfg.Redis.DB),
			redisaudit.WithPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, err
		}
		return b, nil

	case "neo4j":
		b, err := neo4jaudit.New(ctx, neo4jaudit.Config{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported audit backend %q (use sqlite, redis, neo4j, or memory)", backend)
	}
}
