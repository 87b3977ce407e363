package audit_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PipeOpsHQ/segb/audit"
	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

const sampleTTL = `@prefix ex: <http://example.org/> .
ex:s ex:p "o" .`

func sampleGraph(t *testing.T) rdf.Document {
	t.Helper()
	doc, err := rdf.Parse(sampleTTL, rdf.FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

type failingStore struct {
	state.Store
	failSave bool
}

func (f *failingStore) Save(ctx context.Context, doc rdf.Document) error {
	if f.failSave {
		return errors.New("store down")
	}
	return f.Store.Save(ctx, doc)
}

func TestTrail_RecordInsertion(t *testing.T) {
	backend := audit.NewMemoryBackend()
	trail := audit.NewTrail(backend)

	log, err := trail.Record(context.Background(), audit.Mutation{
		Type:    audit.ActionInsertion,
		Actor:   "alice",
		Origin:  "10.0.0.1",
		Content: sampleTTL,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	entry, err := trail.Get(context.Background(), log.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Action.TTLContent != sampleTTL || entry.Log.OriginIP != "10.0.0.1" || entry.Log.ActionID != entry.Action.ID {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestTrail_AtomicityUnderInjectedFailure(t *testing.T) {
	backend := audit.NewMemoryBackend()
	trail := audit.NewTrail(backend)
	n := 0
	trail.SetIDs(func() string { n++; return "id-" + strconv.Itoa(n) })
	backend.SetBeforeCommit(func() error { return errors.New("disk full") })

	_, err := trail.Record(context.Background(), audit.Mutation{Type: audit.ActionInsertion, Content: sampleTTL})
	if err == nil {
		t.Fatalf("expected injected failure")
	}
	for _, id := range []string{"id-1", "id-2"} {
		if _, err := trail.Get(context.Background(), id); !errors.Is(err, audit.ErrNotFound) {
			t.Fatalf("%s must not be visible after failed write, got %v", id, err)
		}
	}
	if _, err := trail.ListRecent(context.Background(), 10); !errors.Is(err, audit.ErrEmpty) {
		t.Fatalf("expected empty trail, got %v", err)
	}
}

func TestTrail_ListRecentEmptyIsDistinct(t *testing.T) {
	trail := audit.NewTrail(audit.NewMemoryBackend())
	if _, err := trail.ListRecent(context.Background(), 5); !errors.Is(err, audit.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := trail.ListRecent(context.Background(), 0); err == nil || errors.Is(err, audit.ErrEmpty) {
		t.Fatalf("expected a validation error for limit 0, got %v", err)
	}
}

func TestTrail_RangeIncludesEndTimestamp(t *testing.T) {
	end := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	trail := audit.NewTrail(audit.NewMemoryBackend(), audit.WithClock(func() time.Time { return end }))

	log, err := trail.Record(context.Background(), audit.Mutation{Type: audit.ActionInsertion, Content: sampleTTL})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := trail.ListRange(context.Background(), end.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 1 || got[0].ID != log.ID {
		t.Fatalf("entry at the end bound must be included, got %+v", got)
	}
	if _, err := trail.ListRange(context.Background(), end, end.Add(-time.Second)); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestTrail_ClearAllStoresContent(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	graph := sampleGraph(t)
	if err := store.Save(ctx, graph); err != nil {
		t.Fatalf("save: %v", err)
	}
	trail := audit.NewTrail(audit.NewMemoryBackend())

	log, err := trail.ClearAll(ctx, store, "admin", "::1")
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if log.ActionType != audit.ActionDeletion {
		t.Fatalf("expected deletion log, got %s", log.ActionType)
	}
	entry, _ := trail.Get(ctx, log.ID)
	if !strings.Contains(entry.Action.DeletedGraph, "ex:s\tex:p\t\"o\"") || entry.Action.DeletedGraphDigest != "" {
		t.Fatalf("unexpected deletion record %+v", entry.Action)
	}
	if _, err := store.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("graph should be cleared, got %v", err)
	}

	if _, err := trail.ClearAll(ctx, store, "admin", "::1"); !errors.Is(err, audit.ErrEmpty) {
		t.Fatalf("second clear must be a no-op, got %v", err)
	}
	logs, _ := trail.ListRecent(ctx, 10)
	if len(logs) != 1 {
		t.Fatalf("no-op clear must not add a record, got %d", len(logs))
	}
}

func TestTrail_ClearAllDigestPolicy(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	graph := sampleGraph(t)
	_ = store.Save(ctx, graph)
	trail := audit.NewTrail(audit.NewMemoryBackend(), audit.WithDeletionPolicy(audit.DeletionDigest))

	log, err := trail.ClearAll(ctx, store, "admin", "::1")
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	entry, _ := trail.Get(ctx, log.ID)
	nt, _ := rdf.Serialize(graph, rdf.FormatNTriples)
	sum := sha256.Sum256([]byte(nt))
	if entry.Action.DeletedGraphDigest != hex.EncodeToString(sum[:]) || entry.Action.DeletedGraph != "" {
		t.Fatalf("unexpected deletion record %+v", entry.Action)
	}
}

func TestTrail_CommitRollsBackWhenAuditFails(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	previous := sampleGraph(t)
	_ = store.Save(ctx, previous)

	backend := audit.NewMemoryBackend()
	backend.SetBeforeCommit(func() error { return errors.New("audit down") })
	trail := audit.NewTrail(backend)

	if _, err := trail.ClearAll(ctx, store, "admin", "::1"); err == nil || errors.Is(err, audit.ErrInconsistent) {
		t.Fatalf("expected a plain audit failure, got %v", err)
	}
	restored, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("graph must be restored: %v", err)
	}
	if restored.Len() != previous.Len() {
		t.Fatalf("restored graph has %d triples, want %d", restored.Len(), previous.Len())
	}
}

func TestTrail_CommitReportsInconsistency(t *testing.T) {
	store := &failingStore{Store: state.NewMemoryStore()}
	ctx := context.Background()
	previous := sampleGraph(t)
	_ = store.Save(ctx, previous)
	store.failSave = true

	backend := audit.NewMemoryBackend()
	backend.SetBeforeCommit(func() error { return errors.New("audit down") })
	trail := audit.NewTrail(backend)

	if _, err := trail.ClearAll(ctx, store, "admin", "::1"); !errors.Is(err, audit.ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
}
