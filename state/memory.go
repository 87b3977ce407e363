package state

import (
	"context"
	"sync"

	"github.com/PipeOpsHQ/segb/rdf"
)

// MemoryStore keeps the graph in process. It is used by tests and by the
// "memory" backend for throwaway deployments.
type MemoryStore struct {
	mu  sync.RWMutex
	doc *rdf.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(ctx context.Context, doc rdf.Document) error {
	_ = ctx
	clone := doc.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = &clone
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (rdf.Document, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return rdf.Document{}, ErrEmpty
	}
	return m.doc.Clone(), nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
