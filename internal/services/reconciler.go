package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"meteo-collector/internal/models"
	"meteo-collector/internal/openmeteo"
	"meteo-collector/internal/repository"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// Collection triggers, used as the trigger metric label
const (
	TriggerMissing = "missing"
	TriggerRecent  = "recent"
	TriggerRange   = "range"
)

// Collection outcomes, used as the outcome metric label
const (
	OutcomeStored       = "stored"
	OutcomeUpToDate     = "up_to_date"
	OutcomeNoData       = "no_data"
	OutcomeStorageError = "storage_error"
)

// ReconcilerConfig holds the gap thresholds
type ReconcilerConfig struct {
	// InitialBackfill is the window collected into an empty store
	InitialBackfill time.Duration
	// StaleAfter is the largest gap still considered up to date
	StaleAfter time.Duration
	// MaxLookback bounds how far back any window may start
	MaxLookback time.Duration
	// Now is the clock; defaults to time.Now
	Now func() time.Time
}

// DefaultReconcilerConfig returns the 7 day backfill and 2 hour freshness thresholds
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		InitialBackfill: 7 * 24 * time.Hour,
		StaleAfter:      2 * time.Hour,
		MaxLookback:     openmeteo.MaxPastDays * 24 * time.Hour,
		Now:             time.Now,
	}
}

// Reconciler decides which window is missing from the store and fills it.
// Passes are serialised so the scheduler and manual triggers never overlap.
type Reconciler struct {
	repo     repository.WeatherRepository
	fetcher  Fetcher
	config   ReconcilerConfig
	location *time.Location
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector

	mu sync.Mutex
}

// NewReconciler creates a new gap reconciler
func NewReconciler(repo repository.WeatherRepository, fetcher Fetcher, cfg ReconcilerConfig, loc *time.Location, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Reconciler {
	defaults := DefaultReconcilerConfig()
	if cfg.InitialBackfill <= 0 {
		cfg.InitialBackfill = defaults.InitialBackfill
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if cfg.MaxLookback <= 0 {
		cfg.MaxLookback = defaults.MaxLookback
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if loc == nil {
		loc = time.Local
	}

	return &Reconciler{
		repo:     repo,
		fetcher:  fetcher,
		config:   cfg,
		location: loc,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// CollectMissing inspects the newest stored observation and collects whatever is missing.
// An empty store gets the initial backfill; a gap within StaleAfter issues no request.
func (r *Reconciler) CollectMissing(ctx context.Context) (*models.CollectionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, result := r.begin(ctx, TriggerMissing)
	now := r.now()

	latest, ok, err := r.repo.LatestTimestamp(ctx)
	if err != nil {
		r.metrics.RecordCollection(TriggerMissing, OutcomeStorageError, 0, 0)
		r.logger.Error(ctx, "[RECONCILE_ERROR] Failed to read latest observation", logging.Fields{}, err)
		return nil, fmt.Errorf("failed to read latest observation: %w", err)
	}

	if !ok {
		r.logger.Info(ctx, "[RECONCILE_EMPTY] No existing weather records found, collecting initial backfill", logging.Fields{
			"backfill_hours": r.config.InitialBackfill.Hours(),
		})
		return r.collect(ctx, result, now.Add(-r.config.InitialBackfill), now)
	}

	gap := now.Sub(latest)
	r.metrics.LatestObservationAge.Set(gap.Seconds())

	if gap <= r.config.StaleAfter {
		r.logger.Info(ctx, "[RECONCILE_UP_TO_DATE] No significant weather data gap found, database is up to date", logging.Fields{
			"latest_record": latest.Format(time.RFC3339),
			"gap":           gap.String(),
		})
		result.Skipped = true
		result.Reason = OutcomeUpToDate
		r.metrics.RecordCollection(TriggerMissing, OutcomeUpToDate, 0, 0)
		return result, nil
	}

	r.logger.Info(ctx, "[RECONCILE_STALE] Found weather data gap", logging.Fields{
		"latest_record": latest.Format(time.RFC3339),
		"gap":           gap.String(),
	})
	return r.collect(ctx, result, floorHour(latest.Add(time.Hour), r.location), now)
}

// CollectLastNHours collects [now-n hours, now] regardless of what is stored
func (r *Reconciler) CollectLastNHours(ctx context.Context, hours int) (*models.CollectionResult, error) {
	if hours <= 0 {
		return nil, &models.ValidationError{
			Field:   "hours",
			Value:   fmt.Sprintf("%d", hours),
			Message: "hours must be positive",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, result := r.begin(ctx, TriggerRecent)
	now := r.now()
	return r.collect(ctx, result, now.Add(-time.Duration(hours)*time.Hour), now)
}

// CollectRange collects an explicit window. The end is clipped to now.
func (r *Reconciler) CollectRange(ctx context.Context, start, end time.Time) (*models.CollectionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, result := r.begin(ctx, TriggerRange)
	now := r.now()
	if end.After(now) {
		end = now
	}
	return r.collect(ctx, result, start, end)
}

func (r *Reconciler) begin(ctx context.Context, trigger string) (context.Context, *models.CollectionResult) {
	runID := logging.RequestID(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = logging.WithRequestID(ctx, runID)
	}
	return ctx, &models.CollectionResult{RunID: runID, Trigger: trigger}
}

func (r *Reconciler) now() time.Time {
	return r.config.Now().In(r.location)
}

// collect fetches one window and merges it into the store. Only storage errors are returned.
func (r *Reconciler) collect(ctx context.Context, result *models.CollectionResult, start, end time.Time) (*models.CollectionResult, error) {
	if earliest := r.now().Add(-r.config.MaxLookback); start.Before(earliest) {
		r.logger.Warn(ctx, "[RECONCILE_CLAMP] Window start exceeds upstream retention, clamping", logging.Fields{
			"requested_start": start.Format(time.RFC3339),
			"clamped_start":   earliest.Format(time.RFC3339),
		})
		start = earliest
	}

	result.Window = &models.CollectionWindow{Start: start, End: end}
	if end.Before(start) {
		result.Skipped = true
		result.Reason = "empty_window"
		r.metrics.RecordCollection(result.Trigger, OutcomeNoData, 0, 0)
		return result, nil
	}

	observations := r.fetcher.Fetch(ctx, start, end)
	result.Fetched = len(observations)

	if len(observations) == 0 {
		result.Reason = OutcomeNoData
		r.metrics.RecordCollection(result.Trigger, OutcomeNoData, 0, 0)
		r.logger.Warn(ctx, "[RECONCILE_NO_DATA] No records collected for window", logging.Fields{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		})
		return result, nil
	}

	inserted, duplicates, err := r.repo.UpsertBatch(ctx, observations)
	if err != nil {
		r.metrics.RecordCollection(result.Trigger, OutcomeStorageError, 0, 0)
		r.logger.Error(ctx, "[RECONCILE_STORE_ERROR] Failed to store weather data", logging.Fields{
			"records": len(observations),
		}, err)
		return nil, fmt.Errorf("failed to store weather data: %w", err)
	}

	result.Inserted = inserted
	result.Duplicates = duplicates
	r.metrics.RecordCollection(result.Trigger, OutcomeStored, inserted, duplicates)

	if latest, ok, err := r.repo.LatestTimestamp(ctx); err == nil && ok {
		r.metrics.LatestObservationAge.Set(r.now().Sub(latest).Seconds())
	}

	r.logger.Info(ctx, "[RECONCILE_STORED] Successfully collected and stored weather data", logging.Fields{
		"trigger":    result.Trigger,
		"start":      start.Format(time.RFC3339),
		"end":        end.Format(time.RFC3339),
		"fetched":    result.Fetched,
		"inserted":   inserted,
		"duplicates": duplicates,
	})

	return result, nil
}

// floorHour truncates t to the start of its hour in loc
func floorHour(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
}
