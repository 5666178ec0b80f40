package publisher

import (
	"context"
	"time"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
)

// Runner is what the scheduler triggers.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) ledger.RunRecord
}

// Scheduler triggers a run on a fixed interval. Ticks are handled one at a
// time, so a slow run delays the next tick instead of overlapping it.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	base       RunOptions
	logger     logging.Logger
}

// NewScheduler builds a Scheduler. base carries the dry-run and
// skip-check defaults from config; the trigger is always scheduled.
func NewScheduler(r Runner, interval time.Duration, runOnStart bool, base RunOptions, l logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if l == nil {
		l = logging.Discard()
	}
	base.Source = ledger.SourceScheduled
	return &Scheduler{runner: r, interval: interval, runOnStart: runOnStart, base: base, logger: l}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithField("interval", s.interval.String()).Info("Starting scheduler")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	rec := s.runner.Run(ctx, s.base)
	s.logger.WithFields(logging.Fields{"outcome": rec.Outcome, "id": rec.ID}).Info("Scheduled run finished")
}
