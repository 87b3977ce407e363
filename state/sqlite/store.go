package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

// Store keeps the canonical graph as a single row, the same way the
// document store kept one graph document with a fixed id.
type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, doc rdf.Document) error {
	if doc.Context == nil {
		doc.Context = map[string]string{}
	}
	if doc.Triples == nil {
		doc.Triples = []rdf.Triple{}
	}
	contextRaw, err := json.Marshal(doc.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal graph context: %w", err)
	}
	triplesRaw, err := json.Marshal(doc.Triples)
	if err != nil {
		return fmt.Errorf("failed to marshal graph triples: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO graph_document (id, context, triples, triple_count, updated_at)
VALUES (0, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  context = excluded.context,
  triples = excluded.triples,
  triple_count = excluded.triple_count,
  updated_at = excluded.updated_at;`,
		string(contextRaw),
		string(triplesRaw),
		len(doc.Triples),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (rdf.Document, error) {
	var contextRaw, triplesRaw string
	err := s.db.QueryRowContext(ctx, `SELECT context, triples FROM graph_document WHERE id = 0;`).Scan(&contextRaw, &triplesRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rdf.Document{}, state.ErrEmpty
		}
		return rdf.Document{}, fmt.Errorf("failed to load graph: %w", err)
	}
	doc := rdf.NewDocument()
	if err := json.Unmarshal([]byte(contextRaw), &doc.Context); err != nil {
		return rdf.Document{}, fmt.Errorf("failed to decode graph context: %w", err)
	}
	if err := json.Unmarshal([]byte(triplesRaw), &doc.Triples); err != nil {
		return rdf.Document{}, fmt.Errorf("failed to decode graph triples: %w", err)
	}
	return doc, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM graph_document;`); err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ state.Store = (*Store)(nil)
