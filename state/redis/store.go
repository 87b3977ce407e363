package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

const defaultPrefix = "segb"

// Store keeps the graph document under a single key. A zero TTL means the
// key never expires, which is what a primary store needs; the hybrid
// backend sets one when Redis only acts as a cache.
type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) Save(ctx context.Context, doc rdf.Document) error {
	if doc.Context == nil {
		doc.Context = map[string]string{}
	}
	if doc.Triples == nil {
		doc.Triples = []rdf.Triple{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := s.client.Set(ctx, s.graphKey(), string(raw), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save graph in redis: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (rdf.Document, error) {
	raw, err := s.client.Get(ctx, s.graphKey()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return rdf.Document{}, state.ErrEmpty
		}
		return rdf.Document{}, fmt.Errorf("failed to load graph from redis: %w", err)
	}
	var doc rdf.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return rdf.Document{}, fmt.Errorf("failed to decode graph from redis: %w", err)
	}
	if doc.Context == nil {
		doc.Context = map[string]string{}
	}
	return doc, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.graphKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear graph in redis: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) graphKey() string {
	return s.prefix + ":graph"
}

var _ state.Store = (*Store)(nil)
