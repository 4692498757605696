package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

type testStore struct {
	db      *database.DB
	weather WeatherRepository
	sensors SensorRepository
}

func newTestStore(t *testing.T) *testStore {
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

	return &testStore{
		db:      db,
		weather: NewWeatherRepository(db, time.UTC, logger, collector),
		sensors: NewSensorRepository(db, logger, collector),
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func floatPtr(v float64) *float64 {
	return &v
}

func hourlyObservations(start time.Time, n int) []*models.Observation {
	out := make([]*models.Observation, 0, n)
	for i := 0; i < n; i++ {
		obs := models.NewObservation(start.Add(time.Duration(i)*time.Hour), time.UTC)
		obs.Temperature = floatPtr(float64(10 + i))
		obs.Humidity = floatPtr(50)
		out = append(out, obs)
	}
	return out
}

func TestUpsertBatch_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	batch := hourlyObservations(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 24)

	inserted, duplicates, err := store.weather.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if inserted != 24 || duplicates != 0 {
		t.Errorf("first upsert = (%d, %d), want (24, 0)", inserted, duplicates)
	}

	inserted, duplicates, err = store.weather.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted != 0 || duplicates != 24 {
		t.Errorf("second upsert = (%d, %d), want (0, 24)", inserted, duplicates)
	}

	count, err := store.weather.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 24 {
		t.Errorf("Count = %d, want 24", count)
	}
}

func TestUpsertBatch_FirstWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := models.NewObservation(at, time.UTC)
	first.Temperature = floatPtr(11.1)
	second := models.NewObservation(at, time.UTC)
	second.Temperature = floatPtr(99.9)

	inserted, duplicates, err := store.weather.UpsertBatch(ctx, []*models.Observation{first, second})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if inserted != 1 || duplicates != 1 {
		t.Errorf("UpsertBatch = (%d, %d), want (1, 1)", inserted, duplicates)
	}

	rows, err := store.weather.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Temperature == nil || *rows[0].Temperature != 11.1 {
		t.Errorf("temperature = %v, want 11.1", rows[0].Temperature)
	}
}

func TestUpsertBatch_Empty(t *testing.T) {
	store := newTestStore(t)

	inserted, duplicates, err := store.weather.UpsertBatch(context.Background(), nil)
	if err != nil || inserted != 0 || duplicates != 0 {
		t.Errorf("UpsertBatch(nil) = (%d, %d, %v)", inserted, duplicates, err)
	}
}

func TestLatestTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.weather.LatestTimestamp(ctx)
	if err != nil {
		t.Fatalf("LatestTimestamp on empty store: %v", err)
	}
	if ok {
		t.Error("expected ok=false on empty store")
	}

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, _, err := store.weather.UpsertBatch(ctx, hourlyObservations(start, 5)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	latest, ok, err := store.weather.LatestTimestamp(ctx)
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if want := start.Add(4 * time.Hour); !latest.Equal(want) {
		t.Errorf("LatestTimestamp = %v, want %v", latest, want)
	}
}

func TestReadLatestAndRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, _, err := store.weather.UpsertBatch(ctx, hourlyObservations(start, 10)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	latest, err := store.weather.ReadLatest(ctx, 3)
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("ReadLatest len = %d, want 3", len(latest))
	}
	if latest[0].Time != "09:00:00" || latest[2].Time != "07:00:00" {
		t.Errorf("ReadLatest order = %s..%s, want 09:00:00..07:00:00", latest[0].Time, latest[2].Time)
	}
	if latest[0].ID == 0 || !latest[0].RecordedAt.Valid {
		t.Errorf("expected store-assigned id and recorded_at, got %+v", latest[0])
	}

	ranged, err := store.weather.ReadRange(ctx, start.Add(2*time.Hour), start.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(ranged) != 4 {
		t.Errorf("ReadRange len = %d, want 4 (bounds inclusive)", len(ranged))
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.weather.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats on empty store: %v", err)
	}
	if empty.TotalRecords != 0 || empty.FirstRecord != nil || empty.LastRecord != nil {
		t.Errorf("empty stats = %+v", empty)
	}
	if empty.Averages.Temperature != 0 {
		t.Errorf("empty average = %v, want 0", empty.Averages.Temperature)
	}

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, _, err := store.weather.UpsertBatch(ctx, hourlyObservations(start, 3)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	stats, err := store.weather.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d", stats.TotalRecords)
	}
	if stats.FirstRecord == nil || !stats.FirstRecord.Equal(start) {
		t.Errorf("FirstRecord = %v, want %v", stats.FirstRecord, start)
	}
	if stats.LastRecord == nil || !stats.LastRecord.Equal(start.Add(2*time.Hour)) {
		t.Errorf("LastRecord = %v", stats.LastRecord)
	}
	if stats.Averages.Temperature != 11 {
		t.Errorf("avg temperature = %v, want 11", stats.Averages.Temperature)
	}
	if stats.Averages.Pressure != 0 {
		t.Errorf("avg pressure = %v, want 0 when all values are null", stats.Averages.Pressure)
	}
}

func TestClear_ResetsSequenceAndKeepsSensors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, _, err := store.weather.UpsertBatch(ctx, hourlyObservations(start, 4)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := store.sensors.SaveReading(ctx, &models.SensorReading{
		Timestamp: "2024-05-01 10:00:00", Moisture: 40, Light: 60, Temperature: 21, TimeOfDay: 10,
	}); err != nil {
		t.Fatalf("SaveReading: %v", err)
	}

	deleted, err := store.weather.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	if _, _, err := store.weather.UpsertBatch(ctx, hourlyObservations(start, 1)); err != nil {
		t.Fatalf("UpsertBatch after clear: %v", err)
	}
	rows, err := store.weather.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 1 {
		t.Errorf("expected id sequence reset to 1, got %+v", rows)
	}

	readings, err := store.sensors.RecentReadings(ctx, 10)
	if err != nil {
		t.Fatalf("RecentReadings: %v", err)
	}
	if len(readings) != 1 {
		t.Errorf("sensor readings = %d, want 1 after weather clear", len(readings))
	}
}

func TestStorageErrorWrapping(t *testing.T) {
	store := newTestStore(t)
	store.db.Close()

	_, err := store.weather.Count(context.Background())
	if err == nil {
		t.Fatal("expected error on closed database")
	}

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if se.Op != "count" {
		t.Errorf("Op = %s, want count", se.Op)
	}
	if !IsStorageError(err) {
		t.Error("IsStorageError = false")
	}
}

func TestUpsertBatch_ConcurrentHandlesKeepKeysUnique(t *testing.T) {
	logger := logging.NewNopLogger()
	collector := metrics.NewCollector("test")
	path := filepath.Join(t.TempDir(), "plant_data.db")

	const handles, writers = 4, 12
	repos := make([]WeatherRepository, handles)
	for i := range repos {
		db, err := database.Open(context.Background(), &database.Config{
			Driver:       database.DriverSQLite,
			Path:         path,
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		}, logger, collector)
		if err != nil {
			t.Fatalf("open handle %d: %v", i, err)
		}
		t.Cleanup(func() { db.Close() })
		repos[i] = NewWeatherRepository(db, time.UTC, logger, collector)
	}

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	const rows = 7 * 24

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inserted   int
		duplicates int
		errs       []error
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(repo WeatherRepository) {
			defer wg.Done()
			ins, dup, err := repo.UpsertBatch(context.Background(), hourlyObservations(start, rows))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			inserted += ins
			duplicates += dup
		}(repos[w%handles])
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("UpsertBatch errors: %v", errs)
	}
	if inserted != rows {
		t.Errorf("inserted = %d, want %d", inserted, rows)
	}
	if duplicates != (writers-1)*rows {
		t.Errorf("duplicates = %d, want %d", duplicates, (writers-1)*rows)
	}

	count, err := repos[0].Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != rows {
		t.Errorf("rows = %d, want %d", count, rows)
	}
}
