package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"meteo-collector/internal/models"
	"meteo-collector/pkg/logging"
)

// Collector is the reconciliation surface the scheduler drives
type Collector interface {
	CollectMissing(ctx context.Context) (*models.CollectionResult, error)
	CollectLastNHours(ctx context.Context, hours int) (*models.CollectionResult, error)
}

// Config controls the periodic job
type Config struct {
	Interval           time.Duration
	RecentRefreshHours int
	RunTimeout         time.Duration
}

// Scheduler periodically reconciles the weather store with the upstream API.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector Collector
	config    Config
	logger    *logging.StructuredLogger
}

// New creates a new Scheduler. Jobs run in loc.
func New(collector Collector, cfg Config, loc *time.Location, logger *logging.StructuredLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}

	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		collector: collector,
		config:    cfg,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens one interval from now; use RunNow for the startup pass.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.config.Interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
		defer cancel()

		if err := s.RunNow(ctx); err != nil {
			s.logger.Error(ctx, "[SCHEDULER_RUN_ERROR] Scheduled collection failed", logging.Fields{}, err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()

	s.logger.Info(context.Background(), "[SCHEDULER_START] Collection scheduled", logging.Fields{
		"interval":             s.config.Interval.String(),
		"recent_refresh_hours": s.config.RecentRefreshHours,
	})
	return nil
}

// RunNow runs one pass: gap reconciliation followed by the recent refresh.
// A failing step is logged and does not prevent the next one.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.logger.Info(ctx, "[SCHEDULER_RUN] Running weather collection", logging.Fields{})

	var errs []error

	if _, err := s.collector.CollectMissing(ctx); err != nil {
		s.logger.Error(ctx, "[SCHEDULER_MISSING_ERROR] Missing data collection failed", logging.Fields{}, err)
		errs = append(errs, err)
	}

	if s.config.RecentRefreshHours > 0 {
		if _, err := s.collector.CollectLastNHours(ctx, s.config.RecentRefreshHours); err != nil {
			s.logger.Error(ctx, "[SCHEDULER_RECENT_ERROR] Recent data collection failed", logging.Fields{
				"hours": s.config.RecentRefreshHours,
			}, err)
			errs = append(errs, err)
		}
	}

	s.logger.Info(ctx, "[SCHEDULER_RUN_COMPLETE] Weather collection completed", logging.Fields{
		"errors": len(errs),
	})
	return errors.Join(errs...)
}

// NextRun reports when the periodic job fires next
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
