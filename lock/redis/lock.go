// Package redis shares the writer lock between several service instances.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/segb/lock"
)

const defaultTTL = 30 * time.Second

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock holds the key for at most ttl so a crashed holder cannot wedge
// every writer. Mutations must finish well within it.
type Lock struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Lock)

// WithLogger sets where release failures are reported.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(client *goredis.Client, prefix string, ttl time.Duration, opts ...Option) (*Lock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "segb"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	l := &Lock{client: client, key: prefix + ":lock:writer", ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Lock) TryAcquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !ok {
		return nil, lock.ErrBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			released, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
			switch {
			case err != nil:
				l.logger.Warn("writer lock release failed, held until ttl expires",
					"key", l.key, "ttl", l.ttl, "error", err)
			case released == 0:
				l.logger.Warn("writer lock expired before release", "key", l.key, "ttl", l.ttl)
			}
		})
	}, nil
}

var _ lock.Locker = (*Lock)(nil)
