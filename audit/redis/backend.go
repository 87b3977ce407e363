package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/segb/audit"
)

const defaultPrefix = "segb"

// Backend keeps each log and action as JSON strings and indexes logs in a
// sorted set scored by their microsecond timestamp. Index members are
// "<seq>|<id>" with a zero-padded sequence, so ties on the score sort by
// append order.
type Backend struct {
	client   *goredis.Client
	prefix   string
	addr     string
	db       int
	password string

	// afterQueue runs after the transaction is queued and before EXEC.
	afterQueue func() error
}

type Option func(*Backend)

func WithPassword(password string) Option {
	return func(b *Backend) {
		b.password = password
	}
}

func WithDB(db int) Option {
	return func(b *Backend) {
		b.db = db
	}
}

func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		if strings.TrimSpace(prefix) != "" {
			b.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(b *Backend) {
		if client != nil {
			b.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Backend, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	b := &Backend{prefix: defaultPrefix, addr: addr}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		b.client = goredis.NewClient(&goredis.Options{
			Addr:     b.addr,
			Password: b.password,
			DB:       b.db,
		})
	}
	if err := b.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return b, nil
}

func (b *Backend) Append(ctx context.Context, log audit.LogEntry, action audit.ActionRecord) error {
	if err := audit.Validate(log, action); err != nil {
		return err
	}
	log.UploadedAt = audit.Stamp(log.UploadedAt)

	exists, err := b.client.Exists(ctx, b.logKey(log.ID), b.actionKey(action.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check audit ids: %w", err)
	}
	if exists > 0 {
		return audit.ErrDuplicateID
	}

	logRaw, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log: %w", err)
	}
	actionRaw, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal audit action: %w", err)
	}
	seq, err := b.client.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate audit sequence: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.logKey(log.ID), string(logRaw), 0)
	if b.afterQueue != nil {
		if err := b.afterQueue(); err != nil {
			pipe.Discard()
			return err
		}
	}
	pipe.Set(ctx, b.actionKey(action.ID), string(actionRaw), 0)
	pipe.ZAdd(ctx, b.indexKey(), goredis.Z{
		Score:  float64(log.UploadedAt.UnixMicro()),
		Member: indexMember(seq, log.ID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append audit entry in redis: %w", err)
	}
	return nil
}

func (b *Backend) ByID(ctx context.Context, id string) (audit.Entry, error) {
	raw, err := b.client.Get(ctx, b.logKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return audit.Entry{}, audit.ErrNotFound
		}
		return audit.Entry{}, fmt.Errorf("failed to load audit log: %w", err)
	}
	var entry audit.Entry
	if err := json.Unmarshal([]byte(raw), &entry.Log); err != nil {
		return audit.Entry{}, fmt.Errorf("failed to decode audit log: %w", err)
	}

	raw, err = b.client.Get(ctx, b.actionKey(entry.Log.ActionID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return audit.Entry{}, fmt.Errorf("audit log %s has no action record", id)
		}
		return audit.Entry{}, fmt.Errorf("failed to load audit action: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &entry.Action); err != nil {
		return audit.Entry{}, fmt.Errorf("failed to decode audit action: %w", err)
	}
	entry.Log.UploadedAt = entry.Log.UploadedAt.UTC()
	return entry, nil
}

func (b *Backend) Recent(ctx context.Context, limit int) ([]audit.LogEntry, error) {
	members, err := b.client.ZRevRange(ctx, b.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent audit logs: %w", err)
	}
	return b.loadLogs(ctx, members)
}

func (b *Backend) ByRange(ctx context.Context, start, end time.Time) ([]audit.LogEntry, error) {
	members, err := b.client.ZRevRangeByScore(ctx, b.indexKey(), &goredis.ZRangeBy{
		Min: strconv.FormatInt(ceilMicro(start), 10),
		Max: strconv.FormatInt(end.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs by range: %w", err)
	}
	return b.loadLogs(ctx, members)
}

func (b *Backend) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

func (b *Backend) loadLogs(ctx context.Context, members []string) ([]audit.LogEntry, error) {
	out := make([]audit.LogEntry, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}
	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = b.logKey(idFromMember(member))
	}
	loaded, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget audit logs: %w", err)
	}
	for i, raw := range loaded {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("audit index references missing log %s", idFromMember(members[i]))
		}
		var log audit.LogEntry
		if err := json.Unmarshal([]byte(s), &log); err != nil {
			return nil, fmt.Errorf("failed to decode audit log: %w", err)
		}
		log.UploadedAt = log.UploadedAt.UTC()
		out = append(out, log)
	}
	return out, nil
}

func (b *Backend) logKey(id string) string    { return b.prefix + ":audit:log:" + id }
func (b *Backend) actionKey(id string) string { return b.prefix + ":audit:action:" + id }
func (b *Backend) indexKey() string           { return b.prefix + ":audit:index" }
func (b *Backend) seqKey() string             { return b.prefix + ":audit:seq" }

func indexMember(seq int64, id string) string {
	return fmt.Sprintf("%019d|%s", seq, id)
}

func idFromMember(member string) string {
	if _, id, ok := strings.Cut(member, "|"); ok {
		return id
	}
	return member
}

func ceilMicro(t time.Time) int64 {
	us := t.UnixMicro()
	if t.Sub(time.UnixMicro(us)) > 0 {
		us++
	}
	return us
}

var _ audit.Backend = (*Backend)(nil)
