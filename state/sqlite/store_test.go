package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

func sampleDocument() rdf.Document {
	return rdf.Document{
		Context: map[string]string{"ex": "http://example.org/"},
		Triples: []rdf.Triple{
			{Subject: rdf.IRI("http://example.org/s"), Predicate: rdf.IRI("http://example.org/p"), Object: rdf.LangLiteral("hola", "es")},
			{Subject: rdf.Blank("b1"), Predicate: rdf.IRI("http://example.org/p"), Object: rdf.TypedLiteral("2", rdf.XSDInteger)},
		},
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if _, err := store.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("expected ErrEmpty on a fresh store, got %v", err)
	}

	doc := sampleDocument()
	if err := store.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("expected ErrEmpty after clear, got %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "graph.db")
	store, err := New(path, WithWAL(false))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, sampleDocument()); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := sampleDocument()
	second.Triples = second.Triples[:1]
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_ = store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("expected the last saved document, got %d triples", got.Len())
	}
}
