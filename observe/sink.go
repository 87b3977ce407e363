package observe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives events describing audit-log operations.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) error { return nil }

// NewMultiSink delivers each event to every non-nil sink. A failing sink
// does not stop delivery to the others; their errors are joined.
func NewMultiSink(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return NoopSink{}
	case 1:
		return live[0]
	}
	return multiSink(live)
}

type multiSink []Sink

func (m multiSink) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncSink decouples request handling from event delivery. Emit never
// blocks: when the queue is full the event is counted and dropped.
type AsyncSink struct {
	downstream Sink
	logger     *slog.Logger
	queue      chan Event
	done       chan struct{}
	closeOnce  sync.Once
	dropped    atomic.Uint64
}

type AsyncOption func(*AsyncSink)

// WithErrorLogger reports downstream delivery failures at DEBUG.
func WithErrorLogger(logger *slog.Logger) AsyncOption {
	return func(s *AsyncSink) { s.logger = logger }
}

func NewAsyncSink(downstream Sink, buffer int, opts ...AsyncOption) *AsyncSink {
	if downstream == nil {
		downstream = NoopSink{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		downstream: downstream,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *AsyncSink) Emit(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.Normalize()
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many events were discarded because the queue was full.
func (s *AsyncSink) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting events and waits for the queue to drain. It must not
// race with Emit.
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() { close(s.queue) })
	<-s.done
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for event := range s.queue {
		err := s.downstream.Emit(context.Background(), event)
		if err != nil && s.logger != nil {
			s.logger.Debug("event delivery failed", "kind", event.Kind, "op", event.Name, "error", err)
		}
	}
}
