package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"botadmin/internal/domain"
)

// EnsureSchema creates the task_config table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS task_config (
  task_name TEXT PRIMARY KEY,
  enabled INTEGER NOT NULL DEFAULT 1,
  config BLOB NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_by TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(schema)
	return err
}

// Store is the durable source of truth for task configuration. Rows are
// never hard-deleted; tasks are retired by setting enabled=0.
type Store interface {
	Get(ctx context.Context, taskName string) (domain.TaskConfig, error)
	Put(ctx context.Context, taskName string, doc json.RawMessage, enabled bool, actor string) (domain.TaskConfig, error)
	Toggle(ctx context.Context, taskName string, enabled bool, actor string) (domain.TaskConfig, error)
	List(ctx context.Context) ([]domain.TaskConfig, error)
	ListEnabled(ctx context.Context) ([]domain.TaskConfig, error)
}

type sqliteStore struct{ db *sql.DB }

func NewSQLiteStore(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) Get(ctx context.Context, taskName string) (domain.TaskConfig, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_name, enabled, config, updated_at, updated_by
FROM task_config WHERE task_name=?`, taskName)
	return scanTaskConfig(row)
}

// Put upserts the document in a single statement so concurrent writers for
// the same task name serialize on the row: the stored document is always
// exactly one writer's document, never a merge.
func (s *sqliteStore) Put(ctx context.Context, taskName string, doc json.RawMessage, enabled bool, actor string) (domain.TaskConfig, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_config (task_name, enabled, config, updated_at, updated_by)
VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?)
ON CONFLICT(task_name) DO UPDATE SET
  enabled=excluded.enabled,
  config=excluded.config,
  updated_at=CURRENT_TIMESTAMP,
  updated_by=excluded.updated_by
`, taskName, enabled, []byte(doc), actor)
	if err != nil {
		return domain.TaskConfig{}, &StoreUnavailableError{Op: "put", Err: err}
	}
	return s.Get(ctx, taskName)
}

// Toggle flips the enabled flag without touching the document.
func (s *sqliteStore) Toggle(ctx context.Context, taskName string, enabled bool, actor string) (domain.TaskConfig, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE task_config SET enabled=?, updated_at=CURRENT_TIMESTAMP, updated_by=?
WHERE task_name=?`, enabled, actor, taskName)
	if err != nil {
		return domain.TaskConfig{}, &StoreUnavailableError{Op: "toggle", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.TaskConfig{}, ErrNotFound
	}
	return s.Get(ctx, taskName)
}

func (s *sqliteStore) List(ctx context.Context) ([]domain.TaskConfig, error) {
	return s.list(ctx, `
SELECT task_name, enabled, config, updated_at, updated_by
FROM task_config ORDER BY task_name`)
}

func (s *sqliteStore) ListEnabled(ctx context.Context) ([]domain.TaskConfig, error) {
	return s.list(ctx, `
SELECT task_name, enabled, config, updated_at, updated_by
FROM task_config WHERE enabled=1 ORDER BY task_name`)
}

func (s *sqliteStore) list(ctx context.Context, query string) ([]domain.TaskConfig, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "list", Err: err}
	}
	defer rows.Close()

	var configs []domain.TaskConfig
	for rows.Next() {
		var tc domain.TaskConfig
		var doc []byte
		if err := rows.Scan(&tc.TaskName, &tc.Enabled, &doc, &tc.UpdatedAt, &tc.UpdatedBy); err != nil {
			return nil, &StoreUnavailableError{Op: "list", Err: err}
		}
		tc.Config = json.RawMessage(doc)
		configs = append(configs, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreUnavailableError{Op: "list", Err: err}
	}
	return configs, nil
}

func scanTaskConfig(row *sql.Row) (domain.TaskConfig, error) {
	var tc domain.TaskConfig
	var doc []byte
	err := row.Scan(&tc.TaskName, &tc.Enabled, &doc, &tc.UpdatedAt, &tc.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.TaskConfig{}, &StoreUnavailableError{Op: "get", Err: err}
	}
	tc.Config = json.RawMessage(doc)
	return tc, nil
}
