// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package notifier

import (
	"context"
	"time"

	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/newsletter/scheduler"
)

// Scheduler drives Notifier.Run on the cadence described by a 5-field
// cron expression (cfg.TickCron), rather than a fixed interval -- the
// upstream process is itself invoked on a cron schedule, so a cron
// expression is the more faithful ambient-scheduling primitive than a
// plain ticker.
type Scheduler struct {
	notifier *Notifier
	cronExpr string
	now      func() time.Time
}

// NewScheduler returns a Scheduler. An empty cronExpr defaults to
// hourly ("0 * * * *").
func NewScheduler(n *Notifier, cronExpr string) *Scheduler {
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	return &Scheduler{notifier: n, cronExpr: cronExpr, now: func() time.Time { return time.Now().UTC() }}
}

// Serve runs ticks until ctx is canceled, implementing suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	cron, err := scheduler.ParseCron(s.cronExpr)
	if err != nil {
		return err
	}

	for {
		next := cron.NextRun(s.now(), time.UTC)
		if next.IsZero() {
			logging.CtxError(ctx).Str("tick_cron", s.cronExpr).Msg("notifier: could not compute next tick, stopping")
			return nil
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := s.notifier.Run(ctx); err != nil {
				logging.CtxErr(ctx, err).Msg("notifier: tick failed")
			}
		}
	}
}
