// Package state persists the canonical graph document. Each backend stores
// exactly one document; Save replaces it wholesale.
package state

import (
	"context"
	"errors"

	"github.com/PipeOpsHQ/segb/rdf"
)

var (
	// ErrEmpty is returned by Load when no graph has been stored yet or the
	// graph was cleared.
	ErrEmpty = errors.New("state: graph is empty")
)

type Store interface {
	Save(ctx context.Context, doc rdf.Document) error
	Load(ctx context.Context) (rdf.Document, error)
	Clear(ctx context.Context) error
	Close() error
}

// LoadOrEmpty maps ErrEmpty to a fresh empty document.
func LoadOrEmpty(ctx context.Context, store Store) (rdf.Document, error) {
	doc, err := store.Load(ctx)
	if errors.Is(err, ErrEmpty) {
		return rdf.NewDocument(), nil
	}
	if err != nil {
		return rdf.Document{}, err
	}
	if doc.Context == nil {
		doc.Context = map[string]string{}
	}
	return doc, nil
}
