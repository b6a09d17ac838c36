package store

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"mindpalace/backend/pkg/logger"
)

// DefaultRetentionCron runs the purge every fifteen minutes.
const DefaultRetentionCron = "*/15 * * * *"

// Purger deletes expired messages.
type Purger interface {
	PurgeExpiredMessages(ctx context.Context, now time.Time) (int64, error)
}

// Retention runs PurgeExpiredMessages on a cron schedule.
type Retention struct {
	purger Purger
	cron   string
	log    *logger.Logger
	now    func() time.Time
}

// NewRetention validates the cron expression. An empty expression means
// DefaultRetentionCron.
func NewRetention(purger Purger, cronExpr string, log *logger.Logger) (*Retention, error) {
	if cronExpr == "" {
		cronExpr = DefaultRetentionCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("store: invalid retention cron expression: %s", cronExpr)
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Retention{purger: purger, cron: cronExpr, log: log, now: time.Now}, nil
}

// RunOnce purges everything expired as of now.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	n, err := r.purger.PurgeExpiredMessages(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info("retention_purged", "messages", n)
	}
	return n, nil
}

// Start launches the scheduler and returns a func that stops it.
func (r *Retention) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	r.log.Info("retention_scheduler_started", "cron", r.cron)
	go r.loop(ctx)
	return cancel
}

func (r *Retention) loop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.cron, r.now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			r.log.LogError(err, "retention_nexttick_failed", "cron", r.cron)
			wait = 30 * time.Second
		}
		if wait < time.Second {
			wait = time.Second
		}

		select {
		case <-ctx.Done():
			r.log.Info("retention_scheduler_stopping")
			return
		case <-time.After(wait):
		}

		if err == nil {
			if _, runErr := r.RunOnce(ctx); runErr != nil {
				r.log.LogError(runErr, "retention_run_error")
			}
		}
	}
}
