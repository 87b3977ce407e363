package observe

import (
	"context"
	"log/slog"
)

// LogSink writes events through slog. Failed events log at ERROR,
// rejected ones at WARN, everything else at INFO.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	event.Normalize()
	level := slog.LevelInfo
	switch event.Status {
	case StatusFailed:
		level = slog.LevelError
	case StatusRejected:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("kind", string(event.Kind)),
		slog.String("status", string(event.Status)),
	}
	if event.Name != "" {
		attrs = append(attrs, slog.String("op", event.Name))
	}
	if event.LogID != "" {
		attrs = append(attrs, slog.String("log_id", event.LogID))
	}
	if event.Origin != "" {
		attrs = append(attrs, slog.String("origin", event.Origin))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, slog.Any(k, v))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.Kind) + " " + string(event.Status)
	}
	s.logger.LogAttrs(ctx, level, msg, attrs...)
	return nil
}
