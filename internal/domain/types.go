package domain

import (
	"encoding/json"
	"time"
)

// TaskConfig is the runtime configuration for one named bot task.
// The config document is task-specific and validated against the task's
// schema before it is ever persisted. The enabled column is authoritative;
// the document may carry its own "enabled" key but consumers must not
// trust it over the column.
type TaskConfig struct {
	TaskName  string          `json:"task_name"`
	Enabled   bool            `json:"enabled"`
	Config    json.RawMessage `json:"config"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by,omitempty"`
}

// AuditRecord is one append-only entry in the audit trail. Input and
// output snapshots are stored after masking; they never contain raw PII.
type AuditRecord struct {
	ID         int64           `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Actor      string          `json:"actor,omitempty"`
	ActionType string          `json:"action_type"`
	ActionName string          `json:"action_name"`
	Success    bool            `json:"success"`
	Input      json.RawMessage `json:"input_data,omitempty"`
	Output     json.RawMessage `json:"output_data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ContentSource describes a registered knowledge-base source. Ingestion
// reads the location, chunks it, and pushes the chunks into the named
// vector-store collection.
type ContentSource struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	SourceType    string     `json:"source_type"` // file or dir
	Location      string     `json:"location"`
	Collection    string     `json:"collection"`
	Enabled       bool       `json:"enabled"`
	LastIngested  *time.Time `json:"last_ingested,omitempty"`
	DocumentCount int        `json:"document_count"`
	CreatedAt     time.Time  `json:"created_at"`
}
