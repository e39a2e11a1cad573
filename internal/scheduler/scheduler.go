// internal/scheduler/scheduler.go
// Package scheduler fires pipeline runs on a recurring cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"datapress/internal/platform/logx"
)

// TriggerFunc is invoked on every schedule tick. Returning an error does
// not stop the scheduler; failed runs wait for the next tick.
type TriggerFunc func(ctx context.Context) error

// Scheduler computes ticks from a cron expression and invokes the
// trigger. The schedule is a reminder cadence, not an exactness
// guarantee: ticks run sequentially, and a tick that fires while the
// previous trigger is still executing is simply the next invocation in
// line.
type Scheduler struct {
	schedule cron.Schedule
	spec     string
	logger   logx.Logger
}

// Parse validates a five-field cron expression and returns a Scheduler.
func Parse(spec string, logger logx.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		schedule: sched,
		spec:     spec,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// Spec returns the cron expression.
func (s *Scheduler) Spec() string {
	return s.spec
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks, invoking trigger at every tick until the context is
// canceled. Trigger errors are logged; the scheduler keeps going.
func (s *Scheduler) Run(ctx context.Context, trigger TriggerFunc) error {
	s.logger.Info("scheduler started", "spec", s.spec)

	for {
		next := s.Next(time.Now())
		s.logger.Info("next run scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := trigger(ctx); err != nil {
			s.logger.Err(err, "phase", "scheduled-trigger")
		}
	}
}
