package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

// HybridStore writes through to a durable store and keeps a best-effort
// copy in a cache. Cache failures are logged, never returned. The cache is
// only read while it is warm: a store starts cold, any failed cache write
// makes it cold, and the next successful write through the cache warms it.
type HybridStore struct {
	durable state.Store
	cache   state.Store
	logger  *slog.Logger
	cold    atomic.Bool
}

func New(durable state.Store, cache state.Store, logger *slog.Logger) (*HybridStore, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &HybridStore{
		durable: durable,
		cache:   cache,
		logger:  logger,
	}
	// a cache left behind by an earlier process may predate the durable copy
	h.cold.Store(true)
	return h, nil
}

func (h *HybridStore) Save(ctx context.Context, doc rdf.Document) error {
	if err := h.durable.Save(ctx, doc); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.Save(ctx, doc); err != nil {
			h.invalidate(ctx, err)
		} else {
			h.cold.Store(false)
		}
	}
	return nil
}

// invalidate drops the cached graph after a failed cache write so that no
// older copy is served.
func (h *HybridStore) invalidate(ctx context.Context, cause error) {
	h.cold.Store(true)
	if err := h.cache.Clear(ctx); err != nil {
		h.logger.Error("hybrid store cache is stale, reading from durable store",
			"save_error", cause, "clear_error", err)
		return
	}
	h.logger.Warn("hybrid store cache save failed, cache cleared", "error", cause)
}

func (h *HybridStore) Load(ctx context.Context) (rdf.Document, error) {
	if h.cache != nil && !h.cold.Load() {
		doc, err := h.cache.Load(ctx)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, state.ErrEmpty) {
			h.logger.Warn("hybrid store cache load failed", "error", err)
		}
	}

	doc, err := h.durable.Load(ctx)
	if err != nil {
		return rdf.Document{}, err
	}
	if h.cache != nil {
		if err := h.cache.Save(ctx, doc); err != nil {
			h.logger.Warn("hybrid store cache backfill failed", "error", err)
		} else {
			h.cold.Store(false)
		}
	}
	return doc, nil
}

// Clear drops the durable copy first. A cache that cannot be cleared goes
// cold so the removed graph is never read back from it.
func (h *HybridStore) Clear(ctx context.Context) error {
	if err := h.durable.Clear(ctx); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.Clear(ctx); err != nil {
			h.cold.Store(true)
			h.logger.Error("hybrid store cache clear failed, reading from durable store", "error", err)
		}
	}
	return nil
}

func (h *HybridStore) Close() error {
	var errs []error
	if h.cache != nil {
		errs = append(errs, h.cache.Close())
	}
	errs = append(errs, h.durable.Close())
	return errors.Join(errs...)
}

var _ state.Store = (*HybridStore)(nil)
