package hybrid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

type memoryStore struct {
	mu         sync.Mutex
	doc        *rdf.Document
	failWrites bool
	failClears bool
	failLoads  bool
	saves      int
}

func (m *memoryStore) Save(ctx context.Context, doc rdf.Document) error {
	_ = ctx
	if m.failWrites {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := doc.Clone()
	m.doc = &cp
	m.saves++
	return nil
}

func (m *memoryStore) Load(ctx context.Context) (rdf.Document, error) {
	_ = ctx
	if m.failLoads {
		return rdf.Document{}, errors.New("load failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return rdf.Document{}, state.ErrEmpty
	}
	return m.doc.Clone(), nil
}

func (m *memoryStore) Clear(ctx context.Context) error {
	_ = ctx
	if m.failWrites || m.failClears {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
	return nil
}

func (m *memoryStore) Close() error { return nil }

func sampleDoc() rdf.Document {
	return rdf.Document{
		Context: map[string]string{"ex": "http://example.org/"},
		Triples: []rdf.Triple{{Subject: rdf.IRI("http://example.org/s"), Predicate: rdf.IRI("http://example.org/p"), Object: rdf.Literal("o")}},
	}
}

func TestHybridStore_CacheWriteFailureDoesNotFailSave(t *testing.T) {
	durable := &memoryStore{}
	cache := &memoryStore{failWrites: true}
	h, err := New(durable, cache, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := h.Save(context.Background(), sampleDoc()); err != nil {
		t.Fatalf("save should succeed with cache failure: %v", err)
	}
	if _, err := durable.Load(context.Background()); err != nil {
		t.Fatalf("durable copy missing: %v", err)
	}
}

func TestHybridStore_LoadBackfillsCache(t *testing.T) {
	durable := &memoryStore{}
	cache := &memoryStore{}
	_ = durable.Save(context.Background(), sampleDoc())

	h, _ := New(durable, cache, nil)
	doc, err := h.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Len() != 1 {
		t.Fatalf("expected 1 triple, got %d", doc.Len())
	}
	if cache.saves != 1 {
		t.Fatalf("expected cache backfill, got %d saves", cache.saves)
	}
}

func TestHybridStore_BrokenCacheFallsBackToDurable(t *testing.T) {
	durable := &memoryStore{}
	_ = durable.Save(context.Background(), sampleDoc())
	h, _ := New(durable, &memoryStore{failLoads: true}, nil)

	if _, err := h.Load(context.Background()); err != nil {
		t.Fatalf("load should fall back to durable store: %v", err)
	}
}

func twoTriples() rdf.Document {
	doc := sampleDoc()
	doc.Triples = append(doc.Triples, rdf.Triple{
		Subject:   rdf.IRI("http://example.org/s2"),
		Predicate: rdf.IRI("http://example.org/p"),
		Object:    rdf.Literal("o2"),
	})
	return doc
}

func TestHybridStore_FailedCacheWriteNeverServesOlderGraph(t *testing.T) {
	ctx := context.Background()
	durable := &memoryStore{}
	cache := &memoryStore{}
	h, _ := New(durable, cache, nil)

	if err := h.Save(ctx, sampleDoc()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	cache.failWrites = true
	if err := h.Save(ctx, twoTriples()); err != nil {
		t.Fatalf("save with a broken cache must still succeed: %v", err)
	}
	cache.failWrites = false

	doc, err := h.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Len() != 2 {
		t.Fatalf("expected the durable graph with 2 triples, got %d", doc.Len())
	}

	// the next write builds on what Load returned, so nothing is lost
	next := doc.Clone()
	next.Triples = append(next.Triples, rdf.Triple{
		Subject:   rdf.IRI("http://example.org/s3"),
		Predicate: rdf.IRI("http://example.org/p"),
		Object:    rdf.Literal("o3"),
	})
	if err := h.Save(ctx, next); err != nil {
		t.Fatalf("third save: %v", err)
	}
	stored, _ := durable.Load(ctx)
	if stored.Len() != 3 {
		t.Fatalf("expected 3 durable triples, got %d", stored.Len())
	}
}

func TestHybridStore_FailedCacheWriteClearsCache(t *testing.T) {
	ctx := context.Background()
	cache := &memoryStore{}
	_ = cache.Save(ctx, sampleDoc())
	h, _ := New(&memoryStore{}, &saveFailingStore{memoryStore: cache}, nil)

	if err := h.Save(ctx, twoTriples()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := cache.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("a failed cache save must clear the cached copy, got %v", err)
	}
}

type saveFailingStore struct{ *memoryStore }

func (s *saveFailingStore) Save(context.Context, rdf.Document) error {
	return errors.New("write failed")
}

func TestHybridStore_ColdStartIgnoresLeftoverCache(t *testing.T) {
	ctx := context.Background()
	durable := &memoryStore{}
	cache := &memoryStore{}
	_ = durable.Save(ctx, twoTriples())
	_ = cache.Save(ctx, sampleDoc())

	h, _ := New(durable, cache, nil)
	doc, err := h.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Len() != 2 {
		t.Fatalf("first load must come from the durable store, got %d triples", doc.Len())
	}

	durable.failLoads = true
	if _, err := h.Load(ctx); err != nil {
		t.Fatalf("warm cache should serve the second load: %v", err)
	}
}

func TestHybridStore_FailedCacheClearGoesCold(t *testing.T) {
	ctx := context.Background()
	durable := &memoryStore{}
	cache := &memoryStore{}
	h, _ := New(durable, cache, nil)
	_ = h.Save(ctx, sampleDoc())

	cache.failClears = true
	if err := h.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := h.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("cleared graph must not come back from the cache, got %v", err)
	}
}

func TestHybridStore_ClearEmptiesBoth(t *testing.T) {
	durable := &memoryStore{}
	cache := &memoryStore{}
	h, _ := New(durable, cache, nil)
	ctx := context.Background()

	_ = h.Save(ctx, sampleDoc())
	if err := h.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := h.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestNew_RequiresDurable(t *testing.T) {
	if _, err := New(nil, &memoryStore{}, nil); err == nil {
		t.Fatalf("expected error without durable store")
	}
}
