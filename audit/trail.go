package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

// DeletionPolicy decides what a deletion ActionRecord keeps of the removed
// graph.
type DeletionPolicy string

const (
	DeletionContent DeletionPolicy = "content"
	DeletionDigest  DeletionPolicy = "digest"
)

func ParseDeletionPolicy(raw string) (DeletionPolicy, error) {
	switch DeletionPolicy(raw) {
	case "", DeletionContent:
		return DeletionContent, nil
	case DeletionDigest:
		return DeletionDigest, nil
	default:
		return "", fmt.Errorf("unknown deletion record policy %q", raw)
	}
}

// Mutation describes one change to audit. Insertions carry the submitted
// Turtle in Content; deletions carry the removed graph in Removed.
type Mutation struct {
	Type    ActionType
	Actor   string
	Origin  string
	Content string
	Removed rdf.Document
}

type Trail struct {
	backend Backend
	policy  DeletionPolicy
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

type TrailOption func(*Trail)

func WithDeletionPolicy(policy DeletionPolicy) TrailOption {
	return func(t *Trail) {
		if policy != "" {
			t.policy = policy
		}
	}
}

func WithClock(now func() time.Time) TrailOption {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) TrailOption {
	return func(t *Trail) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTrail(backend Backend, opts ...TrailOption) *Trail {
	t := &Trail{
		backend: backend,
		policy:  DeletionContent,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trail) Policy() DeletionPolicy { return t.policy }

// Record writes the log/action pair for m and returns the committed log.
func (t *Trail) Record(ctx context.Context, m Mutation) (LogEntry, error) {
	action := ActionRecord{ID: t.newID(), Type: m.Type}
	switch m.Type {
	case ActionInsertion:
		if m.Content == "" {
			return LogEntry{}, errors.New("audit: insertion without content")
		}
		action.TTLContent = m.Content
	case ActionDeletion:
		if err := t.fillDeletion(&action, m.Removed); err != nil {
			return LogEntry{}, err
		}
	default:
		return LogEntry{}, fmt.Errorf("audit: unknown action type %q", m.Type)
	}

	log := LogEntry{
		ID:         t.newID(),
		UploadedAt: Stamp(t.now()),
		OriginIP:   m.Origin,
		ActionType: m.Type,
		ActionID:   action.ID,
		Actor:      m.Actor,
	}
	if err := t.backend.Append(ctx, log, action); err != nil {
		return LogEntry{}, fmt.Errorf("append audit record: %w", err)
	}
	return log, nil
}

func (t *Trail) fillDeletion(action *ActionRecord, removed rdf.Document) error {
	switch t.policy {
	case DeletionDigest:
		nt, err := rdf.Serialize(removed, rdf.FormatNTriples)
		if err != nil {
			return fmt.Errorf("serialize removed graph: %w", err)
		}
		sum := sha256.Sum256([]byte(nt))
		action.DeletedGraphDigest = hex.EncodeToString(sum[:])
	default:
		ttl, err := rdf.Serialize(removed, rdf.FormatTurtle)
		if err != nil {
			return fmt.Errorf("serialize removed graph: %w", err)
		}
		action.DeletedGraph = ttl
	}
	return nil
}

func (t *Trail) Get(ctx context.Context, id string) (Entry, error) {
	if id == "" {
		return Entry{}, ErrNotFound
	}
	return t.backend.ByID(ctx, id)
}

// ListRecent returns at most limit entries, newest first, or ErrEmpty.
func (t *Trail) ListRecent(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("audit: limit must be positive, got %d", limit)
	}
	logs, err := t.backend.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ErrEmpty
	}
	return logs, nil
}

// ListRange returns the entries stamped within [start, end], newest first,
// or ErrEmpty.
func (t *Trail) ListRange(ctx context.Context, start, end time.Time) ([]LogEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("audit: range end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	logs, err := t.backend.ByRange(ctx, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ErrEmpty
	}
	return logs, nil
}

// Commit moves store from previous to next and records m. A nil previous
// means the store held no graph; a nil next clears it. When the audit write
// fails the store is put back to previous, and if that fails too the
// returned error wraps ErrInconsistent. The caller must hold the writer
// lock.
func (t *Trail) Commit(ctx context.Context, store state.Store, previous, next *rdf.Document, m Mutation) (LogEntry, error) {
	ctx = context.WithoutCancel(ctx)

	var err error
	if next == nil {
		err = store.Clear(ctx)
	} else {
		err = store.Save(ctx, *next)
	}
	if err != nil {
		return LogEntry{}, fmt.Errorf("persist graph: %w", err)
	}

	log, err := t.Record(ctx, m)
	if err == nil {
		return log, nil
	}

	var restoreErr error
	if previous == nil {
		restoreErr = store.Clear(ctx)
	} else {
		restoreErr = store.Save(ctx, *previous)
	}
	if restoreErr != nil {
		t.logger.Error("graph rollback failed after audit write error",
			"action_type", m.Type, "audit_error", err, "rollback_error", restoreErr)
		return LogEntry{}, fmt.Errorf("%w: %v; rollback: %v", ErrInconsistent, err, restoreErr)
	}
	t.logger.Warn("graph mutation rolled back", "action_type", m.Type, "error", err)
	return LogEntry{}, err
}

// ClearAll records the removal of the whole graph and empties the store.
// An already empty graph yields ErrEmpty and no record.
func (t *Trail) ClearAll(ctx context.Context, store state.Store, actor, origin string) (LogEntry, error) {
	current, err := store.Load(ctx)
	if errors.Is(err, state.ErrEmpty) {
		return LogEntry{}, ErrEmpty
	}
	if err != nil {
		return LogEntry{}, fmt.Errorf("load graph: %w", err)
	}
	if current.IsEmpty() {
		return LogEntry{}, ErrEmpty
	}
	return t.Commit(ctx, store, &current, nil, Mutation{
		Type:    ActionDeletion,
		Actor:   actor,
		Origin:  origin,
		Removed: current,
	})
}
