package observe

import "time"

type Kind string

type Status string

const (
	KindInsertion Kind = "insertion"
	KindDeletion  Kind = "deletion"
	KindQuery     Kind = "query"
	KindRead      Kind = "read"
	KindAuth      Kind = "auth"
)

const (
	StatusCompleted Status = "completed"
	StatusEmpty     Status = "empty"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Event describes one service operation after it finished.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	Name       string         `json:"name,omitempty"`
	LogID      string         `json:"logId,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Origin     string         `json:"origin,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindRead
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
