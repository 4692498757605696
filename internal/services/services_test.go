package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/internal/openmeteo"
	"meteo-collector/internal/repository"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

type testEnv struct {
	db      *database.DB
	repo    repository.WeatherRepository
	sensors repository.SensorRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.NewNopLogger()
	collector := metrics.NewCollector("test")

	db, err := database.Open(context.Background(), &database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "plant_data.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, collector)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &testEnv{
		db:      db,
		repo:    repository.NewWeatherRepository(db, time.UTC, logger, collector),
		sensors: repository.NewSensorRepository(db, logger, collector),
		logger:  logger,
		metrics: collector,
	}
}

func (e *testEnv) seed(t *testing.T, times ...time.Time) {
	t.Helper()
	batch := make([]*models.Observation, 0, len(times))
	for _, ts := range times {
		batch = append(batch, models.NewObservation(ts, time.UTC))
	}
	if _, _, err := e.repo.UpsertBatch(context.Background(), batch); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (e *testEnv) count(t *testing.T) int {
	t.Helper()
	n, err := e.repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

// fakeSource serves canned hourly rows and remembers the requested past_days
type fakeSource struct {
	mu       sync.Mutex
	rows     []openmeteo.HourlyRow
	err      error
	pastDays []int
}

func (f *fakeSource) Hourly(ctx context.Context, pastDays int) ([]openmeteo.HourlyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pastDays = append(f.pastDays, pastDays)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeSource) Location() *time.Location {
	return time.UTC
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pastDays)
}

func hourlyRows(start time.Time, n int) []openmeteo.HourlyRow {
	rows := make([]openmeteo.HourlyRow, n)
	for i := range rows {
		temp := float64(i)
		ts := start.Add(time.Duration(i) * time.Hour)
		rows[i] = openmeteo.HourlyRow{
			Time:        ts,
			LocalTime:   ts.Format(openmeteo.HourlyTimeLayout),
			Temperature: &temp,
		}
	}
	return rows
}

// recordingFetcher captures requested windows and returns canned observations
type recordingFetcher struct {
	windows      []models.CollectionWindow
	observations []*models.Observation
}

func (f *recordingFetcher) Fetch(ctx context.Context, start, end time.Time) []*models.Observation {
	f.windows = append(f.windows, models.CollectionWindow{Start: start, End: end})
	return f.observations
}
