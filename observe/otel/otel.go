// Package otel turns observe events into OpenTelemetry spans so graph
// writes, deletions and queries show up in any tracing backend.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PipeOpsHQ/segb/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/PipeOpsHQ/segb"

// Sink implements observe.Sink by emitting one span per event.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates a sink on tp. A nil tp falls back to a noop provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()
	start := event.Timestamp
	if event.DurationMs > 0 {
		start = event.Timestamp.Add(-time.Duration(event.DurationMs) * time.Millisecond)
	}

	// Linked to the request span when the caller still carries one.
	_, span := s.tracer.Start(context.WithoutCancel(ctx), spanNameFor(event), trace.WithTimestamp(start))

	attrs := []attribute.KeyValue{
		attribute.String("segb.event.kind", string(event.Kind)),
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("segb.status", string(event.Status)))
	}
	if event.LogID != "" {
		attrs = append(attrs, attribute.String("segb.log.id", event.LogID))
	}
	if event.Actor != "" {
		attrs = append(attrs, attribute.String("segb.actor", event.Actor))
	}
	if event.Origin != "" {
		attrs = append(attrs, attribute.String("segb.origin", event.Origin))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("segb.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("segb.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("segb.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusFailed:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(errors.New(event.Error))
		}
	case observe.StatusCompleted, observe.StatusEmpty:
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(event.Timestamp))
	return nil
}

func spanNameFor(event observe.Event) string {
	if event.Name != "" {
		return "segb." + event.Name
	}
	return "segb." + string(event.Kind)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
