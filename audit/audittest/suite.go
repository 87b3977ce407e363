// Package audittest holds the behavior every audit.Backend must share.
package audittest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/segb/audit"
)

// Pair builds a valid insertion pair stamped at at.
func Pair(at time.Time, ttl string) (audit.LogEntry, audit.ActionRecord) {
	action := audit.ActionRecord{ID: uuid.NewString(), Type: audit.ActionInsertion, TTLContent: ttl}
	log := audit.LogEntry{
		ID:         uuid.NewString(),
		UploadedAt: audit.Stamp(at),
		OriginIP:   "127.0.0.1",
		ActionType: audit.ActionInsertion,
		ActionID:   action.ID,
		Actor:      `{"username":"tester","roles":["logger"]}`,
	}
	return log, action
}

// Run exercises newBackend against the shared contract. newBackend must
// return an empty backend on every call.
func Run(t *testing.T, newBackend func(t *testing.T) audit.Backend) {
	t.Helper()

	t.Run("ByIDRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		log, action := Pair(time.Now(), "@prefix ex: <http://example.org/> .\nex:s ex:p \"o\" .")
		if err := b.Append(ctx, log, action); err != nil {
			t.Fatalf("append: %v", err)
		}
		first, err := b.ByID(ctx, log.ID)
		if err != nil {
			t.Fatalf("by id: %v", err)
		}
		second, err := b.ByID(ctx, log.ID)
		if err != nil {
			t.Fatalf("by id again: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("repeated reads differ:\n%+v\n%+v", first, second)
		}
		if first.Log.ID != log.ID || first.Action.TTLContent != action.TTLContent {
			t.Fatalf("unexpected entry %+v", first)
		}
		if !first.Log.UploadedAt.Equal(log.UploadedAt) {
			t.Fatalf("timestamp changed: %s != %s", first.Log.UploadedAt, log.UploadedAt)
		}
	})

	t.Run("UnknownID", func(t *testing.T) {
		b := newBackend(t)
		if _, err := b.ByID(context.Background(), uuid.NewString()); !errors.Is(err, audit.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeletionDigest", func(t *testing.T) {
		b := newBackend(t)
		action := audit.ActionRecord{ID: uuid.NewString(), Type: audit.ActionDeletion, DeletedGraphDigest: "abc123"}
		log := audit.LogEntry{ID: uuid.NewString(), UploadedAt: audit.Stamp(time.Now()), ActionType: audit.ActionDeletion, ActionID: action.ID}
		if err := b.Append(context.Background(), log, action); err != nil {
			t.Fatalf("append: %v", err)
		}
		got, err := b.ByID(context.Background(), log.ID)
		if err != nil {
			t.Fatalf("by id: %v", err)
		}
		if got.Action.DeletedGraphDigest != "abc123" || got.Action.DeletedGraph != "" {
			t.Fatalf("unexpected deletion record %+v", got.Action)
		}
	})

	t.Run("RecentNewestFirst", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 4; i++ {
			log, action := Pair(base.Add(time.Duration(i)*time.Second), "x")
			if err := b.Append(ctx, log, action); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
			ids = append(ids, log.ID)
		}
		tie, tieAction := Pair(base.Add(3*time.Second), "tie")
		if err := b.Append(ctx, tie, tieAction); err != nil {
			t.Fatalf("append tie: %v", err)
		}

		got, err := b.Recent(ctx, 3)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		want := []string{tie.ID, ids[3], ids[2]}
		if gotIDs := idsOf(got); !reflect.DeepEqual(gotIDs, want) {
			t.Fatalf("unexpected order %v, want %v", gotIDs, want)
		}

		again, _ := b.Recent(ctx, 3)
		if !reflect.DeepEqual(idsOf(again), idsOf(got)) {
			t.Fatalf("recent is not stable without writes")
		}
	})

	t.Run("RecentEmpty", func(t *testing.T) {
		b := newBackend(t)
		got, err := b.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no entries, got %d", len(got))
		}
	})

	t.Run("RangeIsInclusive", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		end := start.Add(time.Hour)

		before, ba := Pair(start.Add(-time.Microsecond), "before")
		atStart, sa := Pair(start, "start")
		middle, ma := Pair(start.Add(30*time.Minute), "middle")
		atEnd, ea := Pair(end, "end")
		after, aa := Pair(end.Add(time.Microsecond), "after")
		for _, p := range []struct {
			l audit.LogEntry
			a audit.ActionRecord
		}{{before, ba}, {atStart, sa}, {middle, ma}, {atEnd, ea}, {after, aa}} {
			if err := b.Append(ctx, p.l, p.a); err != nil {
				t.Fatalf("append: %v", err)
			}
		}

		got, err := b.ByRange(ctx, start, end)
		if err != nil {
			t.Fatalf("by range: %v", err)
		}
		want := []string{atEnd.ID, middle.ID, atStart.ID}
		if gotIDs := idsOf(got); !reflect.DeepEqual(gotIDs, want) {
			t.Fatalf("unexpected range %v, want %v", gotIDs, want)
		}
	})

	t.Run("RejectsMismatchedPair", func(t *testing.T) {
		b := newBackend(t)
		log, action := Pair(time.Now(), "x")
		log.ActionID = uuid.NewString()
		if err := b.Append(context.Background(), log, action); err == nil {
			t.Fatalf("expected error for log referencing another action")
		}
		if _, err := b.ByID(context.Background(), log.ID); !errors.Is(err, audit.ErrNotFound) {
			t.Fatalf("rejected pair must not be visible, got %v", err)
		}
	})
}

func idsOf(logs []audit.LogEntry) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ID)
	}
	return out
}
