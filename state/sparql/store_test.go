package sparql

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

type fakeGraphStore struct {
	mu     sync.Mutex
	body   string
	exists bool
	graphs []string
}

func (f *fakeGraphStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphs = append(f.graphs, r.URL.Query().Get("graph"))
	switch r.Method {
	case http.MethodPut:
		raw, _ := io.ReadAll(r.Body)
		f.body = string(raw)
		f.exists = true
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = io.WriteString(w, f.body)
	case http.MethodDelete:
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		f.exists = false
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	fake := &fakeGraphStore{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := New(srv.URL+"/store", "http://example.org/segb")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, state.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	doc := rdf.Document{
		Context: map[string]string{"ex": "http://example.org/"},
		Triples: []rdf.Triple{{Subject: rdf.IRI("http://example.org/s"), Predicate: rdf.IRI("http://example.org/p"), Object: rdf.LangLiteral("hola", "es")}},
	}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 1 || got.Triples[0].Object != rdf.LangLiteral("hola", "es") {
		t.Fatalf("unexpected graph: %+v", got)
	}
	if got.Context["ex"] != "http://example.org/" {
		t.Fatalf("prefix lost: %v", got.Context)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clearing an absent graph must succeed: %v", err)
	}
	for _, g := range fake.graphs {
		if g != "http://example.org/segb" {
			t.Fatalf("request addressed graph %q", g)
		}
	}
}

func TestStore_ServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := New(srv.URL, "")
	if _, err := s.Load(context.Background()); err == nil || errors.Is(err, state.ErrEmpty) {
		t.Fatalf("expected server error, got %v", err)
	}
}
