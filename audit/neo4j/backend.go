// Package neo4j stores the audit trail as a graph:
// (:Log)-[:HAS_ACTION]->(:Action:Insertion|:Action:Deletion).
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PipeOpsHQ/segb/audit"
)

const schemaStatements = `
CREATE CONSTRAINT segb_log_id IF NOT EXISTS FOR (l:Log) REQUIRE l.id IS UNIQUE;
CREATE CONSTRAINT segb_action_id IF NOT EXISTS FOR (a:Action) REQUIRE a.id IS UNIQUE;
CREATE INDEX segb_log_uploaded IF NOT EXISTS FOR (l:Log) ON (l.uploaded_us)`

const logFields = `l.id AS id, l.uploaded_us AS uploaded_us, l.origin_ip AS origin_ip,
       l.action_type AS action_type, l.action_id AS action_id, l.user_details AS user_details`

type Backend struct {
	driver   neo4j.DriverWithContext
	database string

	// afterLog runs inside the write transaction between the two creates.
	afterLog func() error
}

type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable: %w", err)
	}
	b := &Backend{driver: driver, database: cfg.Database}
	if err := b.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return b, nil
}

func (b *Backend) ensureSchema(ctx context.Context) error {
	session := b.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, stmt := range strings.Split(schemaStatements, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply neo4j schema: %w", err)
		}
	}
	return nil
}

func (b *Backend) Append(ctx context.Context, log audit.LogEntry, action audit.ActionRecord) error {
	if err := audit.Validate(log, action); err != nil {
		return err
	}
	at := audit.Stamp(log.UploadedAt)
	label := "Insertion"
	if action.Type == audit.ActionDeletion {
		label = "Deletion"
	}

	session := b.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
OPTIONAL MATCH (existing:Log {id: $id})
WITH existing
WHERE existing IS NULL
MERGE (c:AuditSequence {name: 'audit'})
ON CREATE SET c.value = 0
SET c.value = c.value + 1
CREATE (l:Log {
  id: $id, seq: c.value, uploaded_us: $uploaded_us, uploaded_at: $uploaded_at,
  origin_ip: $origin_ip, action_type: $action_type, action_id: $action_id, user_details: $user_details
})
RETURN l.id AS id`, map[string]any{
			"id":           log.ID,
			"uploaded_us":  at.UnixMicro(),
			"uploaded_at":  at.Format(time.RFC3339Nano),
			"origin_ip":    log.OriginIP,
			"action_type":  string(log.ActionType),
			"action_id":    log.ActionID,
			"user_details": log.Actor,
		})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			if err := result.Err(); err != nil {
				return nil, err
			}
			return nil, audit.ErrDuplicateID
		}

		if b.afterLog != nil {
			if err := b.afterLog(); err != nil {
				return nil, err
			}
		}

		props := map[string]any{"id": action.ID, "type": string(action.Type)}
		if action.TTLContent != "" {
			props["ttl_content"] = action.TTLContent
		}
		if action.DeletedGraph != "" {
			props["ttl_deleted_graph"] = action.DeletedGraph
		}
		if action.DeletedGraphDigest != "" {
			props["deleted_graph_sha256"] = action.DeletedGraphDigest
		}
		if _, err := tx.Run(ctx, `
MATCH (l:Log {id: $log_id})
CREATE (a:Action:`+label+`)
SET a = $props
CREATE (l)-[:HAS_ACTION]->(a)`, map[string]any{"log_id": log.ID, "props": props}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, audit.ErrDuplicateID) {
			return err
		}
		return fmt.Errorf("failed to append audit entry in neo4j: %w", err)
	}
	return nil
}

func (b *Backend) ByID(ctx context.Context, id string) (audit.Entry, error) {
	session := b.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
MATCH (l:Log {id: $id})-[:HAS_ACTION]->(a:Action)
RETURN `+logFields+`,
       a.id AS a_id, a.type AS a_type, a.ttl_content AS ttl_content,
       a.ttl_deleted_graph AS ttl_deleted_graph, a.deleted_graph_sha256 AS deleted_graph_sha256`,
		map[string]any{"id": id})
	if err != nil {
		return audit.Entry{}, fmt.Errorf("failed to load audit entry: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return audit.Entry{}, fmt.Errorf("failed to load audit entry: %w", err)
		}
		return audit.Entry{}, audit.ErrNotFound
	}
	record := result.Record()
	return audit.Entry{
		Log: logFromRecord(record),
		Action: audit.ActionRecord{
			ID:                 stringValue(record, "a_id"),
			Type:               audit.ActionType(stringValue(record, "a_type")),
			TTLContent:         stringValue(record, "ttl_content"),
			DeletedGraph:       stringValue(record, "ttl_deleted_graph"),
			DeletedGraphDigest: stringValue(record, "deleted_graph_sha256"),
		},
	}, nil
}

func (b *Backend) Recent(ctx context.Context, limit int) ([]audit.LogEntry, error) {
	return b.listLogs(ctx, `
MATCH (l:Log)
RETURN `+logFields+`
ORDER BY l.uploaded_us DESC, l.seq DESC
LIMIT $limit`, map[string]any{"limit": int64(limit)})
}

func (b *Backend) ByRange(ctx context.Context, start, end time.Time) ([]audit.LogEntry, error) {
	return b.listLogs(ctx, `
MATCH (l:Log)
WHERE l.uploaded_us >= $start AND l.uploaded_us <= $end
RETURN `+logFields+`
ORDER BY l.uploaded_us DESC, l.seq DESC`, map[string]any{
		"start": ceilMicro(start),
		"end":   end.UnixMicro(),
	})
}

func (b *Backend) Close() error {
	if b == nil || b.driver == nil {
		return nil
	}
	return b.driver.Close(context.Background())
}

func (b *Backend) listLogs(ctx context.Context, query string, params map[string]any) ([]audit.LogEntry, error) {
	session := b.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	out := make([]audit.LogEntry, 0)
	for result.Next(ctx) {
		out = append(out, logFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return out, nil
}

func (b *Backend) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: b.database})
}

func logFromRecord(record *neo4j.Record) audit.LogEntry {
	var uploaded int64
	if v, ok := record.Get("uploaded_us"); ok {
		if n, ok := v.(int64); ok {
			uploaded = n
		}
	}
	return audit.LogEntry{
		ID:         stringValue(record, "id"),
		UploadedAt: time.UnixMicro(uploaded).UTC(),
		OriginIP:   stringValue(record, "origin_ip"),
		ActionType: audit.ActionType(stringValue(record, "action_type")),
		ActionID:   stringValue(record, "action_id"),
		Actor:      stringValue(record, "user_details"),
	}
}

func stringValue(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func ceilMicro(t time.Time) int64 {
	us := t.UnixMicro()
	if t.Sub(time.UnixMicro(us)) > 0 {
		us++
	}
	return us
}

var _ audit.Backend = (*Backend)(nil)
