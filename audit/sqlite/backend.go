package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PipeOpsHQ/segb/audit"
)

//go:embed schema.sql
var schemaSQL string

// Backend writes every log/action pair in one sqlite transaction.
type Backend struct {
	db *sql.DB

	// afterLog runs inside the transaction between the two inserts.
	afterLog func() error
}

func New(path string) (*Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA busy_timeout=5000;", "PRAGMA journal_mode=WAL;", "PRAGMA foreign_keys=ON;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Append(ctx context.Context, log audit.LogEntry, action audit.ActionRecord) error {
	if err := audit.Validate(log, action); err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	at := audit.Stamp(log.UploadedAt)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_logs (id, uploaded_us, uploaded_at, origin_ip, action_type, action_id, user_details)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
		log.ID, at.UnixMicro(), at.Format(time.RFC3339Nano), log.OriginIP, string(log.ActionType), log.ActionID, log.Actor,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return audit.ErrDuplicateID
		}
		return fmt.Errorf("insert audit log: %w", err)
	}

	if b.afterLog != nil {
		if err := b.afterLog(); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_actions (id, log_id, type, ttl_content, ttl_deleted_graph, deleted_graph_sha256)
VALUES (?, ?, ?, ?, ?, ?);`,
		action.ID, log.ID, string(action.Type), nullable(action.TTLContent), nullable(action.DeletedGraph), nullable(action.DeletedGraphDigest),
	); err != nil {
		return fmt.Errorf("insert audit action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

func (b *Backend) ByID(ctx context.Context, id string) (audit.Entry, error) {
	row := b.db.QueryRowContext(ctx, `
SELECT l.id, l.uploaded_us, l.origin_ip, l.action_type, l.action_id, l.user_details,
       a.id, a.type, a.ttl_content, a.ttl_deleted_graph, a.deleted_graph_sha256
FROM audit_logs l
JOIN audit_actions a ON a.log_id = l.id
WHERE l.id = ?;`, id)

	var (
		entry                    audit.Entry
		uploaded                 int64
		logType, actionType      string
		content, deleted, digest sql.NullString
	)
	err := row.Scan(
		&entry.Log.ID, &uploaded, &entry.Log.OriginIP, &logType, &entry.Log.ActionID, &entry.Log.Actor,
		&entry.Action.ID, &actionType, &content, &deleted, &digest,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return audit.Entry{}, audit.ErrNotFound
		}
		return audit.Entry{}, fmt.Errorf("load audit entry: %w", err)
	}
	entry.Log.UploadedAt = time.UnixMicro(uploaded).UTC()
	entry.Log.ActionType = audit.ActionType(logType)
	entry.Action.Type = audit.ActionType(actionType)
	entry.Action.TTLContent = content.String
	entry.Action.DeletedGraph = deleted.String
	entry.Action.DeletedGraphDigest = digest.String
	return entry, nil
}

func (b *Backend) Recent(ctx context.Context, limit int) ([]audit.LogEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT id, uploaded_us, origin_ip, action_type, action_id, user_details
FROM audit_logs
ORDER BY uploaded_us DESC, seq DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit logs: %w", err)
	}
	return scanLogs(rows)
}

func (b *Backend) ByRange(ctx context.Context, start, end time.Time) ([]audit.LogEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT id, uploaded_us, origin_ip, action_type, action_id, user_details
FROM audit_logs
WHERE uploaded_us >= ? AND uploaded_us <= ?
ORDER BY uploaded_us DESC, seq DESC;`, ceilMicro(start), end.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("list audit logs by range: %w", err)
	}
	return scanLogs(rows)
}

func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func scanLogs(rows *sql.Rows) ([]audit.LogEntry, error) {
	defer rows.Close()
	out := make([]audit.LogEntry, 0)
	for rows.Next() {
		var (
			log      audit.LogEntry
			uploaded int64
			kind     string
		)
		if err := rows.Scan(&log.ID, &uploaded, &log.OriginIP, &kind, &log.ActionID, &log.Actor); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		log.UploadedAt = time.UnixMicro(uploaded).UTC()
		log.ActionType = audit.ActionType(kind)
		out = append(out, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return out, nil
}

// ceilMicro rounds a lower bound up so that sub-microsecond bounds do not
// admit entries stamped before them.
func ceilMicro(t time.Time) int64 {
	us := t.UnixMicro()
	if t.Sub(time.UnixMicro(us)) > 0 {
		us++
	}
	return us
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ audit.Backend = (*Backend)(nil)
