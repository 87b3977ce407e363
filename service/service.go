// Package service is the write and read orchestration of the audit log:
// it folds fragments into the canonical graph under the writer lock,
// persists them, records the audit pair and serves the read side.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/PipeOpsHQ/segb/audit"
	"github.com/PipeOpsHQ/segb/experiment"
	"github.com/PipeOpsHQ/segb/graph"
	"github.com/PipeOpsHQ/segb/internal/config"
	"github.com/PipeOpsHQ/segb/lock"
	"github.com/PipeOpsHQ/segb/metrics"
	"github.com/PipeOpsHQ/segb/observe"
	"github.com/PipeOpsHQ/segb/query"
	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

// Caller identifies who asked for a mutation. Actor is the principal
// descriptor stored with the audit entry.
type Caller struct {
	Actor  string
	Origin string
}

// Selector picks one experiment either by full URI or by namespace and
// id. Exactly one of the two forms must be set.
type Selector struct {
	URI       string
	Namespace string
	ID        string
}

type Service struct {
	store        state.Store
	trail        *audit.Trail
	locker       lock.Locker
	gate         *query.Gate
	sink         observe.Sink
	metrics      metrics.Collector
	logger       *slog.Logger
	historyLimit int
	now          func() time.Time
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithGate(g *query.Gate) Option {
	return func(s *Service) {
		if g != nil {
			s.gate = g
		}
	}
}

func WithSink(sink observe.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistoryLimit sets the page size used when History is called
// without a limit.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= config.MaxHistoryLimit {
			s.historyLimit = n
		}
	}
}

func New(store state.Store, trail *audit.Trail, opts ...Option) *Service {
	s := &Service{
		store:        store,
		trail:        trail,
		locker:       lock.NewMemory(),
		gate:         query.NewGate(nil, 0),
		sink:         observe.NoopSink{},
		metrics:      metrics.Noop{},
		logger:       slog.Default(),
		historyLimit: config.DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest merges a Turtle fragment into the canonical graph and records the
// insertion. The writer lock covers load, merge, persist and audit.
func (s *Service) Ingest(ctx context.Context, caller Caller, ttl string) (log audit.LogEntry, err error) {
	const op = "insertion"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindInsertion, Name: op, LogID: log.ID, Actor: caller.Actor, Origin: caller.Origin}, start, err)
	}()

	if strings.TrimSpace(ttl) == "" {
		return audit.LogEntry{}, fail(op, KindInvalid, "empty body", nil)
	}

	release, err := s.acquire(ctx, op)
	if err != nil {
		return audit.LogEntry{}, err
	}
	defer release()

	previous, current, err := s.loadForWrite(ctx)
	if err != nil {
		return audit.LogEntry{}, fail(op, KindUnavailable, "graph store unavailable", err)
	}

	frag, err := graph.Prepare(current, ttl)
	if err != nil {
		return audit.LogEntry{}, fail(op, KindUnprocessable, "malformed turtle", err)
	}
	merged, err := graph.Merge(current, frag.Document)
	if err != nil {
		return audit.LogEntry{}, fail(op, KindInternal, "", err)
	}

	log, err = s.trail.Commit(ctx, s.store, previous, &merged, audit.Mutation{
		Type:    audit.ActionInsertion,
		Actor:   caller.Actor,
		Origin:  caller.Origin,
		Content: ttl,
	})
	if err != nil {
		return audit.LogEntry{}, s.commitError(op, err)
	}
	s.metrics.SetGraphSize(ctx, merged.Len())
	return log, nil
}

// Clear removes the whole graph and records the deletion. An already
// empty graph is KindEmpty and writes nothing.
func (s *Service) Clear(ctx context.Context, caller Caller) (log audit.LogEntry, err error) {
	const op = "clear"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindDeletion, Name: op, LogID: log.ID, Actor: caller.Actor, Origin: caller.Origin}, start, err)
	}()

	release, err := s.acquire(ctx, op)
	if err != nil {
		return audit.LogEntry{}, err
	}
	defer release()

	log, err = s.trail.ClearAll(ctx, s.store, caller.Actor, caller.Origin)
	if errors.Is(err, audit.ErrEmpty) {
		return audit.LogEntry{}, fail(op, KindEmpty, "graph is already empty", err)
	}
	if err != nil {
		return audit.LogEntry{}, s.commitError(op, err)
	}
	s.metrics.SetGraphSize(ctx, 0)
	return log, nil
}

func (s *Service) Log(ctx context.Context, id string) (entry audit.Entry, err error) {
	const op = "log"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindRead, Name: op, LogID: id}, start, err)
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return audit.Entry{}, fail(op, KindInvalid, "log_id is required", nil)
	}
	entry, err = s.trail.Get(ctx, id)
	if errors.Is(err, audit.ErrNotFound) {
		return audit.Entry{}, fail(op, KindNotFound, "log not found", err)
	}
	if err != nil {
		return audit.Entry{}, fail(op, KindUnavailable, "audit store unavailable", err)
	}
	return entry, nil
}

// History lists the most recent entries, newest first. A zero limit uses
// the configured default.
func (s *Service) History(ctx context.Context, limit int) (logs []audit.LogEntry, err error) {
	const op = "history"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindRead, Name: op, Attributes: map[string]any{"count": len(logs)}}, start, err)
	}()

	if limit == 0 {
		limit = s.historyLimit
	}
	if limit < 0 || limit > config.MaxHistoryLimit {
		return nil, fail(op, KindInvalid, "limit out of range", nil)
	}
	logs, err = s.trail.ListRecent(ctx, limit)
	return logs, s.listError(op, err)
}

// HistoryRange lists entries stamped within [start, end], newest first.
func (s *Service) HistoryRange(ctx context.Context, from, to time.Time) (logs []audit.LogEntry, err error) {
	const op = "history"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindRead, Name: op, Attributes: map[string]any{"count": len(logs)}}, start, err)
	}()

	if to.Before(from) {
		return nil, fail(op, KindInvalid, "end is before start", nil)
	}
	logs, err = s.trail.ListRange(ctx, from, to)
	return logs, s.listError(op, err)
}

func (s *Service) Graph(ctx context.Context) (doc rdf.Document, err error) {
	const op = "graph"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindRead, Name: op, Attributes: map[string]any{"triples": doc.Len()}}, start, err)
	}()

	doc, err = s.store.Load(ctx)
	if errors.Is(err, state.ErrEmpty) || (err == nil && doc.IsEmpty()) {
		return rdf.Document{}, fail(op, KindEmpty, "graph is empty", state.ErrEmpty)
	}
	if err != nil {
		return rdf.Document{}, fail(op, KindUnavailable, "graph store unavailable", err)
	}
	return doc, nil
}

// Query runs a read-only query. Rejections never reach the engine and a
// query never produces an audit record.
func (s *Service) Query(ctx context.Context, q string) (doc rdf.Document, err error) {
	const op = "query"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindQuery, Name: op, Message: q}, start, err)
	}()

	if strings.TrimSpace(q) == "" {
		return rdf.Document{}, fail(op, KindInvalid, "query is required", nil)
	}
	current, err := state.LoadOrEmpty(ctx, s.store)
	if err != nil {
		return rdf.Document{}, fail(op, KindUnavailable, "graph store unavailable", err)
	}

	doc, err = s.gate.Execute(ctx, q, current.Context)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, query.ErrForbidden), errors.Is(err, query.ErrUnsupported):
		return rdf.Document{}, fail(op, KindRejected, "query rejected", err)
	case errors.Is(err, query.ErrNotConfigured):
		return rdf.Document{}, fail(op, KindRejected, "no query engine configured", err)
	case errors.Is(err, query.ErrTimeout):
		return rdf.Document{}, fail(op, KindTimeout, "query timed out", err)
	default:
		return rdf.Document{}, fail(op, KindInternal, "query failed", err)
	}
}

// Experiments lists the URIs of all experiments in the graph.
func (s *Service) Experiments(ctx context.Context) (uris []string, err error) {
	const op = "experiments"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindRead, Name: op, Attributes: map[string]any{"count": len(uris)}}, start, err)
	}()

	current, err := state.LoadOrEmpty(ctx, s.store)
	if err != nil {
		return nil, fail(op, KindUnavailable, "graph store unavailable", err)
	}
	uris = experiment.List(current)
	if len(uris) == 0 {
		return nil, fail(op, KindEmpty, "no experiments", nil)
	}
	return uris, nil
}

// Experiment returns the view of one experiment.
func (s *Service) Experiment(ctx context.Context, sel Selector) (doc rdf.Document, err error) {
	const op = "experiment"
	start := s.now()
	defer func() {
		s.observe(ctx, observe.Event{Kind: observe.KindRead, Name: op, Attributes: map[string]any{"uri": sel.URI, "experiment_id": sel.ID}}, start, err)
	}()

	ref, err := resolveSelector(sel)
	if err != nil {
		return rdf.Document{}, fail(op, KindUnprocessable, "malformed experiment identifier", err)
	}
	current, err := state.LoadOrEmpty(ctx, s.store)
	if err != nil {
		return rdf.Document{}, fail(op, KindUnavailable, "graph store unavailable", err)
	}
	doc, err = experiment.Graph(current, ref)
	if errors.Is(err, experiment.ErrNotFound) {
		return rdf.Document{}, fail(op, KindNotFound, "experiment not found", err)
	}
	if err != nil {
		return rdf.Document{}, fail(op, KindInternal, "", err)
	}
	return doc, nil
}

func resolveSelector(sel Selector) (experiment.Ref, error) {
	hasPart := sel.Namespace != "" || sel.ID != ""
	switch {
	case sel.URI != "" && hasPart:
		return experiment.Ref{}, errors.New("use either uri or namespace with experiment_id")
	case sel.URI != "":
		return experiment.ParseURI(sel.URI)
	default:
		return experiment.FromParts(sel.Namespace, sel.ID)
	}
}

func (s *Service) acquire(ctx context.Context, op string) (func(), error) {
	release, err := s.locker.TryAcquire(ctx)
	if errors.Is(err, lock.ErrBusy) {
		s.logger.Warn("mutation rejected, writer lock held", "op", op)
		return nil, fail(op, KindBusy, "another mutation is in progress", err)
	}
	if err != nil {
		return nil, fail(op, KindUnavailable, "writer lock unavailable", err)
	}
	return release, nil
}

// loadForWrite returns the stored graph as the rollback target (nil when
// none is stored) together with the merge base.
func (s *Service) loadForWrite(ctx context.Context) (*rdf.Document, rdf.Document, error) {
	doc, err := s.store.Load(ctx)
	if errors.Is(err, state.ErrEmpty) {
		return nil, rdf.NewDocument(), nil
	}
	if err != nil {
		return nil, rdf.Document{}, err
	}
	if doc.Context == nil {
		doc.Context = map[string]string{}
	}
	previous := doc.Clone()
	return &previous, doc, nil
}

func (s *Service) commitError(op string, err error) error {
	if errors.Is(err, audit.ErrInconsistent) {
		return fail(op, KindInconsistent, "audit trail and graph disagree", err)
	}
	return fail(op, KindUnavailable, "mutation was not recorded", err)
}

func (s *Service) listError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, audit.ErrEmpty) {
		return fail(op, KindEmpty, "no history", err)
	}
	return fail(op, KindUnavailable, "audit store unavailable", err)
}

func (s *Service) observe(ctx context.Context, event observe.Event, start time.Time, err error) {
	end := s.now()
	event.Timestamp = end.UTC()
	event.DurationMs = end.Sub(start).Milliseconds()
	event.Status = observe.StatusCompleted
	if err != nil {
		kind := KindOf(err)
		switch kind {
		case KindEmpty:
			event.Status = observe.StatusEmpty
		case KindInvalid, KindUnprocessable, KindNotFound, KindBusy, KindRejected:
			event.Status = observe.StatusRejected
		default:
			event.Status = observe.StatusFailed
		}
		if kind != KindEmpty {
			event.Error = err.Error()
			s.metrics.RecordError(ctx, event.Name, string(kind))
		}
	}
	s.metrics.RecordOperation(ctx, event.Name, string(event.Status), end.Sub(start))
	if emitErr := s.sink.Emit(ctx, event); emitErr != nil {
		s.logger.Debug("event sink failed", "op", event.Name, "error", emitErr)
	}
}
