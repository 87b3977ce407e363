package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	seq    int64
	log    LogEntry
	action ActionRecord
}

// MemoryBackend keeps the trail in process memory. It is meant for tests
// and for running without any persistence.
type MemoryBackend struct {
	mu      sync.RWMutex
	seq     int64
	records []memoryRecord
	byID    map[string]int

	// beforeCommit runs after both records are staged and before they
	// become visible. Tests use it to inject a failure mid-write.
	beforeCommit func() error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{byID: map[string]int{}}
}

func (m *MemoryBackend) Append(ctx context.Context, log LogEntry, action ActionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(log, action); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byID[log.ID]; dup {
		return ErrDuplicateID
	}
	staged := memoryRecord{seq: m.seq + 1, log: log, action: action}
	if m.beforeCommit != nil {
		if err := m.beforeCommit(); err != nil {
			return err
		}
	}
	m.seq = staged.seq
	m.byID[log.ID] = len(m.records)
	m.records = append(m.records, staged)
	return nil
}

func (m *MemoryBackend) ByID(ctx context.Context, id string) (Entry, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	rec := m.records[idx]
	return Entry{Log: rec.log, Action: rec.action}, nil
}

func (m *MemoryBackend) Recent(ctx context.Context, limit int) ([]LogEntry, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	sorted := m.sortedLocked()
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return logsOf(sorted), nil
}

func (m *MemoryBackend) ByRange(ctx context.Context, start, end time.Time) ([]LogEntry, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]memoryRecord, 0)
	for _, rec := range m.sortedLocked() {
		at := rec.log.UploadedAt
		if at.Before(start) || at.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return logsOf(out), nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) sortedLocked() []memoryRecord {
	out := make([]memoryRecord, len(m.records))
	copy(out, m.records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.log.UploadedAt.Equal(b.log.UploadedAt) {
			return a.log.UploadedAt.After(b.log.UploadedAt)
		}
		return a.seq > b.seq
	})
	return out
}

func logsOf(records []memoryRecord) []LogEntry {
	out := make([]LogEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.log)
	}
	return out
}

var _ Backend = (*MemoryBackend)(nil)
