// Package scheduler runs the periodic background jobs: cache warming for
// tracked coordinates and the expired-row purge of the SQLite cache.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-engine/internal/cache"
)

const defaultJobTimeout = 30 * time.Second

// Warmer prefetches current conditions for a set of coordinates.
type Warmer interface {
	Warm(ctx context.Context, coords []cache.Coordinate) error
}

// Purger removes expired cache entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Scheduler wraps a gocron scheduler. Jobs run once at start and then every
// interval; a run never overlaps the previous run of the same job.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	logger     *zap.Logger
	jobTimeout time.Duration
}

// New creates a Scheduler. jobTimeout bounds each run; zero uses 30s.
func New(logger *zap.Logger, jobTimeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, logger: logger, jobTimeout: jobTimeout}
}

// AddWarmJob schedules cache warming for coords. No job is added when coords
// is empty.
func (s *Scheduler) AddWarmJob(w Warmer, coords []cache.Coordinate, interval time.Duration) error {
	if len(coords) == 0 {
		s.logger.Info("scheduler: no tracked coordinates; warm job not scheduled")
		return nil
	}
	if _, err := s.scheduler.Every(interval).Tag("warm").Do(s.warmJob(w, coords)); err != nil {
		return fmt.Errorf("schedule warm job: %w", err)
	}
	s.logger.Info("scheduler: warm job scheduled", zap.Duration("interval", interval), zap.Int("coordinates", len(coords)))
	return nil
}

// AddPurgeJob schedules removal of expired entries.
func (s *Scheduler) AddPurgeJob(p Purger, interval time.Duration) error {
	if _, err := s.scheduler.Every(interval).Tag("purge").Do(s.purgeJob(p)); err != nil {
		return fmt.Errorf("schedule purge job: %w", err)
	}
	s.logger.Info("scheduler: purge job scheduled", zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) warmJob(w Warmer, coords []cache.Coordinate) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if err := w.Warm(ctx, coords); err != nil {
			s.logger.Warn("scheduler: cache warming failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) purgeJob(p Purger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			s.logger.Warn("scheduler: cache purge failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduler: expired cache entries purged", zap.Int("removed", n))
	}
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int { return s.scheduler.Len() }

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
