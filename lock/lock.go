// Package lock is the single-writer guard around graph mutations. Acquiring
// never waits: a held lock is reported as ErrBusy so the caller can tell
// the client to retry.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrBusy = errors.New("lock: another mutation is in progress")

// Locker hands out the writer lock. release is safe to call more than once.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

type Memory struct {
	mu sync.Mutex
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) TryAcquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.mu.TryLock() {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(m.mu.Unlock) }, nil
}

var _ Locker = (*Memory)(nil)
