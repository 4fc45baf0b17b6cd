package privilege

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically evicts verdicts older than EvictAfter so the cache
// does not grow with every member ever seen. It never touches fresh entries,
// so the read path behaves the same with or without it.
type Sweeper struct {
	store      Store
	schedule   string
	evictAfter time.Duration
	logger     *logrus.Entry
	now        func() time.Time
}

// NewSweeper validates the cron schedule and returns a Sweeper.
func NewSweeper(store Store, config Config, logger *logrus.Logger) (*Sweeper, error) {
	if !gronx.New().IsValid(config.SweepSchedule) {
		return nil, fmt.Errorf("privilege: invalid sweep schedule %q", config.SweepSchedule)
	}
	if config.EvictAfter < config.TTL {
		return nil, fmt.Errorf("privilege: evict-after %s is shorter than ttl %s", config.EvictAfter, config.TTL)
	}
	return &Sweeper{
		store:      store,
		schedule:   config.SweepSchedule,
		evictAfter: config.EvictAfter,
		logger:     logger.WithField("component", "privilege-sweeper"),
		now:        time.Now,
	}, nil
}

// Run sweeps on every schedule tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.schedule, s.now(), false)
		if err != nil {
			s.logger.WithError(err).Error("cannot compute next sweep, stopping")
			return
		}

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sweeper stopped")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce evicts stale entries and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.now().Add(-s.evictAfter))
	if err != nil {
		s.logger.WithError(err).Warn("sweep failed")
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("evicted stale privilege entries")
	}
	return removed
}
