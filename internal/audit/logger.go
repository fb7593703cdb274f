package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"botadmin/internal/domain"
)

// EnsureSchema creates the audit_records table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS audit_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  actor TEXT NOT NULL DEFAULT '',
  action_type TEXT NOT NULL,
  action_name TEXT NOT NULL,
  success INTEGER NOT NULL,
  input_data TEXT,
  output_data TEXT,
  error TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_records(action_name);
`
	_, err := db.Exec(schema)
	return err
}

// LoggingFailure means neither the database nor the fallback file accepted
// the record. Callers treat it as non-fatal.
type LoggingFailure struct{ Err error }

func (e *LoggingFailure) Error() string { return fmt.Sprintf("audit logging failed: %v", e.Err) }
func (e *LoggingFailure) Unwrap() error { return e.Err }

// Entry is one action outcome to audit. Input and Output are arbitrary
// values; they are serialized and masked before persistence.
type Entry struct {
	Actor      string
	ActionType string
	ActionName string
	Success    bool
	Input      any
	Output     any
	Error      string
}

// Logger appends immutable records to the audit trail. Records that the
// database refuses fall through to a local JSONL file so the trail survives
// store outages.
type Logger struct {
	db           *sql.DB
	fallbackPath string

	mu sync.Mutex // serializes fallback file appends
}

func NewLogger(db *sql.DB, fallbackPath string) *Logger {
	return &Logger{db: db, fallbackPath: fallbackPath}
}

// Record persists one entry. Masking is unconditional.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	input := snapshot(e.Input)
	output := snapshot(e.Output)

	_, err := l.db.ExecContext(ctx, `
INSERT INTO audit_records (actor, action_type, action_name, success, input_data, output_data, error)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Actor, e.ActionType, e.ActionName, e.Success,
		nullable(input), nullable(output), nullableStr(e.Error))
	if err == nil {
		return nil
	}

	log.Warn().Err(err).Str("action", e.ActionName).Msg("audit db write failed, using fallback sink")
	if ferr := l.appendFallback(e, input, output); ferr != nil {
		return &LoggingFailure{Err: fmt.Errorf("db: %v; fallback: %w", err, ferr)}
	}
	return nil
}

// List returns records newest first, filtered by action type and outcome.
func (l *Logger) List(ctx context.Context, f Filter) ([]domain.AuditRecord, error) {
	query := `
SELECT id, timestamp, actor, action_type, action_name, success, input_data, output_data, error
FROM audit_records WHERE 1=1`
	var args []any
	if f.ActionType != "" {
		query += " AND action_type=?"
		args = append(args, f.ActionType)
	}
	if f.ActionName != "" {
		query += " AND action_name=?"
		args = append(args, f.ActionName)
	}
	if f.Success != nil {
		query += " AND success=?"
		args = append(args, *f.Success)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var input, output, errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Actor, &rec.ActionType, &rec.ActionName,
			&rec.Success, &input, &output, &errMsg); err != nil {
			return nil, err
		}
		if input.Valid {
			rec.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			rec.Output = json.RawMessage(output.String)
		}
		rec.Error = errMsg.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Filter narrows List results. A nil Success matches both outcomes.
type Filter struct {
	ActionType string
	ActionName string
	Success    *bool
	Limit      int
	Offset     int
}

// Purge deletes records older than keep. Retention is the single sanctioned
// deletion path for the trail.
func (l *Logger) Purge(ctx context.Context, keep time.Duration) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_records WHERE timestamp < datetime(CURRENT_TIMESTAMP, ?)`,
		fmt.Sprintf("-%d seconds", int(keep.Seconds())))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *Logger) appendFallback(e Entry, input, output json.RawMessage) error {
	if l.fallbackPath == "" {
		return fmt.Errorf("no fallback sink configured")
	}
	line := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		"actor":       e.Actor,
		"action_type": e.ActionType,
		"action_name": e.ActionName,
		"success":     e.Success,
		"input_data":  input,
		"output_data": output,
		"error":       e.Error,
	}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.fallbackPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.fallbackPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`"<unserializable>"`)
	}
	return MaskJSON(raw)
}

func nullable(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
