package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically purges sessions whose last activity predates the
// retention threshold.
type Sweeper struct {
	store    Store
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewSweeper builds a sweeper. schedule is a standard 5-field cron
// expression, e.g. "0 3 * * *" for daily at 03:00.
func NewSweeper(store Store, maxAge time.Duration, schedule string, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the purge job and begins the scheduler.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, s.runOnce)
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("retention sweeper started",
		"schedule", s.schedule,
		"max_age", s.maxAge.String())
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := s.store.PurgeOlderThan(ctx, s.maxAge, "")
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("retention sweep removed sessions", "count", removed)
	}
}
