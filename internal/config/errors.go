package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound means no configuration exists for the task name. It is never
// cached: a later create must become visible on the next read.
var ErrNotFound = errors.New("task config not found")

// ValidationError rejects a config document before persistence. It is
// user-correctable and maps to a 400 at the API boundary.
type ValidationError struct {
	TaskName string
	Issues   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config for task %q: %s", e.TaskName, strings.Join(e.Issues, "; "))
}

// StoreUnavailableError wraps a transient store failure. Callers retry with
// backoff before surfacing it.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("config store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialWriteError means the store committed the new document but the
// cache invalidation that must follow it failed. The write itself is done;
// the caller retries only the invalidation.
type PartialWriteError struct {
	TaskName string
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("config for task %q written but invalidation failed: %v", e.TaskName, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
