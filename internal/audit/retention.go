package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Retention purges audit records past the retention window on a cron
// schedule.
type Retention struct {
	logger *Logger
	c      *cron.Cron
	keep   time.Duration
}

func NewRetention(logger *Logger, schedule string, keep time.Duration) (*Retention, error) {
	r := &Retention{logger: logger, c: cron.New(), keep: keep}
	if _, err := r.c.AddFunc(schedule, r.run); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Retention) Start() { r.c.Start() }
func (r *Retention) Stop()  { r.c.Stop() }

func (r *Retention) run() {
	n, err := r.logger.Purge(context.Background(), r.keep)
	if err != nil {
		log.Error().Err(err).Msg("audit retention purge failed")
		return
	}
	if n > 0 {
		log.Info().Int64("purged", n).Dur("keep", r.keep).Msg("audit retention purge")
	}
}
