// Package consumer implements the action-handler side of the config
// contract: before a task may start, its active configuration is resolved
// through the cache and the availability gates are checked. When the task
// is unavailable the dialogue engine falls back to a generic response.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"botadmin/internal/config"
	"botadmin/internal/domain"
)

// ErrTaskUnavailable tells the dialogue engine to refuse the task and fall
// back. It covers unknown names, disabled tasks and availability gates.
var ErrTaskUnavailable = errors.New("task unavailable")

var intentToTask = map[string]string{
	"book_service":       "book_service",
	"schedule_meeting":   "schedule_meeting",
	"cancel_booking":     "cancel_booking",
	"reschedule_booking": "reschedule_booking",
	"check_booking":      "check_booking",
}

// TaskForIntent maps a recognized intent to its task name. Unmapped
// intents pass through unchanged.
func TaskForIntent(intent string) string {
	if task, ok := intentToTask[intent]; ok {
		return task
	}
	return intent
}

// ConfigReader is the read path the resolver depends on; *config.Manager
// satisfies it.
type ConfigReader interface {
	Get(ctx context.Context, taskName string) (domain.TaskConfig, error)
}

type Resolver struct {
	configs ConfigReader
	now     func() time.Time
}

func NewResolver(configs ConfigReader) *Resolver {
	return &Resolver{configs: configs, now: time.Now}
}

// Resolve returns the active configuration for the task, or
// ErrTaskUnavailable when the task is unknown, disabled, outside business
// hours or on a blocked date. Infrastructure errors propagate unchanged so
// the caller can distinguish an outage from a refusal.
func (r *Resolver) Resolve(ctx context.Context, taskName string) (domain.TaskConfig, error) {
	tc, err := r.configs.Get(ctx, taskName)
	if errors.Is(err, config.ErrNotFound) {
		return domain.TaskConfig{}, fmt.Errorf("unknown task %q: %w", taskName, ErrTaskUnavailable)
	}
	if err != nil {
		return domain.TaskConfig{}, err
	}
	if !tc.Enabled {
		return domain.TaskConfig{}, fmt.Errorf("task %q disabled: %w", taskName, ErrTaskUnavailable)
	}

	g := parseGates(tc)
	now := r.now()
	if !g.withinHours(now) {
		return domain.TaskConfig{}, fmt.Errorf("task %q outside business hours: %w", taskName, ErrTaskUnavailable)
	}
	if g.blockedOn(now) {
		return domain.TaskConfig{}, fmt.Errorf("task %q blocked today: %w", taskName, ErrTaskUnavailable)
	}
	return tc, nil
}

type gates struct {
	BusinessHours *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"business_hours"`
	BlockedDates []string `json:"blocked_dates"`
}

func parseGates(tc domain.TaskConfig) gates {
	var g gates
	if len(tc.Config) == 0 {
		return g
	}
	// A document without gates (or one that fails to parse) imposes none.
	_ = json.Unmarshal(tc.Config, &g)
	return g
}

func (g gates) withinHours(now time.Time) bool {
	if g.BusinessHours == nil {
		return true
	}
	start, okS := parseClock(g.BusinessHours.Start)
	end, okE := parseClock(g.BusinessHours.End)
	if !okS || !okE {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	return start <= cur && cur < end
}

func (g gates) blockedOn(now time.Time) bool {
	today := now.Format("2006-01-02")
	for _, d := range g.BlockedDates {
		if d == today {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
