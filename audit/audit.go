// Package audit is the append-only record of every mutation of the
// canonical graph. Each mutation is one LogEntry plus exactly one
// ActionRecord, written together or not at all.
package audit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("audit: log not found")
	ErrDuplicateID = errors.New("audit: log id already used")
	// ErrEmpty is the no-content outcome: an empty listing, or a clear on a
	// graph that holds nothing.
	ErrEmpty = errors.New("audit: nothing to report")
	// ErrInconsistent means a graph mutation could not be rolled back after
	// its audit record failed to commit.
	ErrInconsistent = errors.New("audit: graph and audit trail diverged")
)

type ActionType string

const (
	ActionInsertion ActionType = "insertion"
	ActionDeletion  ActionType = "deletion"
)

func (a ActionType) Valid() bool {
	return a == ActionInsertion || a == ActionDeletion
}

type LogEntry struct {
	ID         string     `json:"_id"`
	UploadedAt time.Time  `json:"uploaded_at"`
	OriginIP   string     `json:"origin_ip"`
	ActionType ActionType `json:"action_type"`
	ActionID   string     `json:"action"`
	Actor      string     `json:"user_details"`
}

// ActionRecord is the body of a LogEntry. An insertion carries TTLContent;
// a deletion carries exactly one of DeletedGraph or DeletedGraphDigest.
type ActionRecord struct {
	ID                 string     `json:"_id"`
	Type               ActionType `json:"type"`
	TTLContent         string     `json:"ttl_content,omitempty"`
	DeletedGraph       string     `json:"ttl_deleted_graph,omitempty"`
	DeletedGraphDigest string     `json:"deleted_graph_sha256,omitempty"`
}

type Entry struct {
	Log    LogEntry     `json:"log"`
	Action ActionRecord `json:"action"`
}

// Backend stores log/action pairs. Append must commit both records in one
// transaction. Listings are ordered newest first; entries sharing a
// timestamp come back in reverse append order.
type Backend interface {
	Append(ctx context.Context, log LogEntry, action ActionRecord) error
	ByID(ctx context.Context, id string) (Entry, error)
	Recent(ctx context.Context, limit int) ([]LogEntry, error)
	ByRange(ctx context.Context, start, end time.Time) ([]LogEntry, error)
	Close() error
}

// Precision is the timestamp resolution every backend keeps.
const Precision = time.Microsecond

// Stamp normalizes t to the stored resolution in UTC.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// Validate checks the pairing rules every backend relies on.
func Validate(log LogEntry, action ActionRecord) error {
	switch {
	case log.ID == "" || action.ID == "":
		return errors.New("audit: log and action ids are required")
	case log.ActionID != action.ID:
		return errors.New("audit: log does not reference its action")
	case !log.ActionType.Valid() || log.ActionType != action.Type:
		return errors.New("audit: action type mismatch")
	case action.Type == ActionDeletion && (action.DeletedGraph == "") == (action.DeletedGraphDigest == ""):
		return errors.New("audit: deletion must hold either content or digest")
	}
	return nil
}
