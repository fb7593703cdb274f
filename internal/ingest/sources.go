package ingest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"botadmin/internal/domain"
)

var ErrSourceNotFound = errors.New("content source not found")

// EnsureSchema creates the content_sources table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS content_sources (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  source_type TEXT NOT NULL CHECK(source_type IN ('file','dir')),
  location TEXT NOT NULL,
  collection TEXT NOT NULL DEFAULT 'website_content',
  enabled INTEGER NOT NULL DEFAULT 1,
  last_ingested DATETIME,
  document_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

// SourceStore is the registry of ingestable content sources.
type SourceStore interface {
	Create(ctx context.Context, src domain.ContentSource) (domain.ContentSource, error)
	Get(ctx context.Context, id string) (domain.ContentSource, error)
	List(ctx context.Context) ([]domain.ContentSource, error)
	ListEnabled(ctx context.Context) ([]domain.ContentSource, error)
	MarkIngested(ctx context.Context, id string, at time.Time, documents int) error
}

type sqliteSources struct{ db *sql.DB }

func NewSQLiteSources(db *sql.DB) SourceStore { return &sqliteSources{db: db} }

func (s *sqliteSources) Create(ctx context.Context, src domain.ContentSource) (domain.ContentSource, error) {
	if src.ID == "" {
		src.ID = "src_" + uuid.NewString()
	}
	if src.Collection == "" {
		src.Collection = "website_content"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO content_sources (id, name, source_type, location, collection, enabled, created_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		src.ID, src.Name, src.SourceType, src.Location, src.Collection, src.Enabled)
	if err != nil {
		return domain.ContentSource{}, err
	}
	return s.Get(ctx, src.ID)
}

func (s *sqliteSources) Get(ctx context.Context, id string) (domain.ContentSource, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, source_type, location, collection, enabled, last_ingested, document_count, created_at
FROM content_sources WHERE id=?`, id)
	src, err := scanSource(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContentSource{}, ErrSourceNotFound
	}
	return src, err
}

func (s *sqliteSources) List(ctx context.Context) ([]domain.ContentSource, error) {
	return s.list(ctx, `
SELECT id, name, source_type, location, collection, enabled, last_ingested, document_count, created_at
FROM content_sources ORDER BY name`)
}

func (s *sqliteSources) ListEnabled(ctx context.Context) ([]domain.ContentSource, error) {
	return s.list(ctx, `
SELECT id, name, source_type, location, collection, enabled, last_ingested, document_count, created_at
FROM content_sources WHERE enabled=1 ORDER BY name`)
}

func (s *sqliteSources) list(ctx context.Context, query string) ([]domain.ContentSource, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.ContentSource
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *sqliteSources) MarkIngested(ctx context.Context, id string, at time.Time, documents int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE content_sources SET last_ingested=?, document_count=? WHERE id=?`, at, documents, id)
	return err
}

func scanSource(scan func(dest ...any) error) (domain.ContentSource, error) {
	var src domain.ContentSource
	var last sql.NullTime
	err := scan(&src.ID, &src.Name, &src.SourceType, &src.Location, &src.Collection,
		&src.Enabled, &last, &src.DocumentCount, &src.CreatedAt)
	if err != nil {
		return domain.ContentSource{}, err
	}
	if last.Valid {
		src.LastIngested = &last.Time
	}
	return src, nil
}
