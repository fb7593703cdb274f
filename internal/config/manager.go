package config

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"botadmin/internal/audit"
	"botadmin/internal/domain"
)

const readRetries = 3

// Manager ties the store, cache, invalidator and audit trail together. Every
// successful mutation produces exactly one audit record and exactly one
// invalidation; an invalidation failure surfaces as *PartialWriteError so
// the caller can retry the invalidation alone.
type Manager struct {
	store      Store
	cache      *Cache
	audit      *audit.Logger
	invalidate Invalidator
}

// NewManager wires the default invalidator to the cache when inv is nil.
func NewManager(store Store, cache *Cache, auditLog *audit.Logger, inv Invalidator) *Manager {
	if inv == nil {
		inv = func(taskName string) error {
			cache.Invalidate(taskName)
			return nil
		}
	}
	return &Manager{store: store, cache: cache, audit: auditLog, invalidate: inv}
}

// Get reads through the cache, retrying transient store failures a bounded
// number of times with exponential backoff.
func (m *Manager) Get(ctx context.Context, taskName string) (domain.TaskConfig, error) {
	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.TaskConfig{}, ctx.Err()
			case <-time.After(backoffExp(attempt)):
			}
		}
		tc, err := m.cache.Read(ctx, taskName)
		var unavailable *StoreUnavailableError
		if errors.As(err, &unavailable) {
			lastErr = err
			continue
		}
		return tc, err
	}
	return domain.TaskConfig{}, lastErr
}

// Put validates, persists, audits, then invalidates the cache entry.
func (m *Manager) Put(ctx context.Context, taskName string, doc json.RawMessage, actor string) (domain.TaskConfig, error) {
	input := putInput{TaskName: taskName, Config: doc}
	if err := ValidateDocument(taskName, doc); err != nil {
		m.record(ctx, actor, "update_task_config", false, input, nil, err)
		return domain.TaskConfig{}, err
	}
	tc, err := m.store.Put(ctx, taskName, doc, EnabledFromDoc(doc), actor)
	if err != nil {
		m.record(ctx, actor, "update_task_config", false, input, nil, err)
		return domain.TaskConfig{}, err
	}
	m.record(ctx, actor, "update_task_config", true, input, tc, nil)
	if err := m.invalidate(taskName); err != nil {
		return tc, &PartialWriteError{TaskName: taskName, Err: err}
	}
	return tc, nil
}

// Toggle flips the enabled flag without replacing the document.
func (m *Manager) Toggle(ctx context.Context, taskName string, enabled bool, actor string) (domain.TaskConfig, error) {
	input := toggleInput{TaskName: taskName, Enabled: enabled}
	tc, err := m.store.Toggle(ctx, taskName, enabled, actor)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.record(ctx, actor, "toggle_task", false, input, nil, err)
		}
		return domain.TaskConfig{}, err
	}
	m.record(ctx, actor, "toggle_task", true, input, tc, nil)
	if err := m.invalidate(taskName); err != nil {
		return tc, &PartialWriteError{TaskName: taskName, Err: err}
	}
	return tc, nil
}

// Invalidate exposes the invalidator for admin tooling and for retrying
// after a partial write.
func (m *Manager) Invalidate(taskName string) error { return m.invalidate(taskName) }

func (m *Manager) List(ctx context.Context) ([]domain.TaskConfig, error) {
	return m.store.List(ctx)
}

func (m *Manager) ListEnabled(ctx context.Context) ([]domain.TaskConfig, error) {
	return m.store.ListEnabled(ctx)
}

type putInput struct {
	TaskName string          `json:"task_name"`
	Config   json.RawMessage `json:"config"`
}

type toggleInput struct {
	TaskName string `json:"task_name"`
	Enabled  bool   `json:"enabled"`
}

// record appends to the audit trail. Audit failures never propagate to the
// mutation being audited; they land in the operational log and the logger's
// fallback sink.
func (m *Manager) record(ctx context.Context, actor, actionName string, success bool, input, output any, cause error) {
	if m.audit == nil {
		return
	}
	entry := audit.Entry{
		Actor:      actor,
		ActionType: "config",
		ActionName: actionName,
		Success:    success,
		Input:      input,
		Output:     output,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := m.audit.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", actionName).Msg("audit record dropped")
	}
}

func backoffExp(attempt int) time.Duration {
	if attempt <= 0 {
		return 100 * time.Millisecond
	}
	d := 1 << (attempt - 1) // 1,2,4,8...
	if d > 8 {
		d = 8
	}
	return time.Duration(d) * 100 * time.Millisecond
}
