package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"meteo-collector/internal/models"
	"meteo-collector/internal/openmeteo"
	"meteo-collector/internal/repository"
	"meteo-collector/pkg/logging"
)

func newTestReconciler(env *testEnv, fetcher Fetcher, now time.Time) *Reconciler {
	cfg := DefaultReconcilerConfig()
	cfg.Now = fixedClock(now)
	return NewReconciler(env.repo, fetcher, cfg, time.UTC, env.logger, env.metrics)
}

func TestCollectMissing_GapClassification(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 20, 0, 0, time.UTC)

	tests := []struct {
		name       string
		latest     *time.Time
		wantWindow *models.CollectionWindow
	}{
		{
			name:       "empty store backfills seven days",
			latest:     nil,
			wantWindow: &models.CollectionWindow{Start: now.Add(-7 * 24 * time.Hour), End: now},
		},
		{
			name:       "thirty minute gap is fresh",
			latest:     timePtr(now.Add(-30 * time.Minute)),
			wantWindow: nil,
		},
		{
			name:       "exactly two hours is fresh",
			latest:     timePtr(now.Add(-2 * time.Hour)),
			wantWindow: nil,
		},
		{
			name:   "five hour gap starts at the next whole hour",
			latest: timePtr(time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)),
			wantWindow: &models.CollectionWindow{
				Start: time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC),
				End:   now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.latest != nil {
				env.seed(t, *tt.latest)
			}
			fetcher := &recordingFetcher{}
			reconciler := newTestReconciler(env, fetcher, now)

			result, err := reconciler.CollectMissing(context.Background())
			if err != nil {
				t.Fatalf("CollectMissing: %v", err)
			}
			if result.RunID == "" {
				t.Error("expected run id")
			}

			if tt.wantWindow == nil {
				if len(fetcher.windows) != 0 {
					t.Errorf("fetches = %d, want 0", len(fetcher.windows))
				}
				if !result.Skipped || result.Reason != OutcomeUpToDate {
					t.Errorf("result = %+v, want skipped up_to_date", result)
				}
				return
			}

			if len(fetcher.windows) != 1 {
				t.Fatalf("fetches = %d, want 1", len(fetcher.windows))
			}
			got := fetcher.windows[0]
			if !got.Start.Equal(tt.wantWindow.Start) || !got.End.Equal(tt.wantWindow.End) {
				t.Errorf("window = [%v, %v], want [%v, %v]", got.Start, got.End, tt.wantWindow.Start, tt.wantWindow.End)
			}
		})
	}
}

func TestCollectMissing_FloorsPartialHour(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)

	// Stored keys are whole hours in practice, but a partial latest must still floor.
	env.seed(t, time.Date(2024, 5, 10, 10, 45, 0, 0, time.UTC))
	fetcher := &recordingFetcher{}

	if _, err := newTestReconciler(env, fetcher, now).CollectMissing(context.Background()); err != nil {
		t.Fatalf("CollectMissing: %v", err)
	}
	if want := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC); !fetcher.windows[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", fetcher.windows[0].Start, want)
	}
}

func TestCollectLastNHours(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 15, 20, 0, 0, time.UTC)
	env.seed(t, now.Add(-10*time.Minute))

	fetcher := &recordingFetcher{}
	reconciler := newTestReconciler(env, fetcher, now)

	result, err := reconciler.CollectLastNHours(context.Background(), 3)
	if err != nil {
		t.Fatalf("CollectLastNHours: %v", err)
	}
	if len(fetcher.windows) != 1 {
		t.Fatalf("fetches = %d, want 1 even when store is fresh", len(fetcher.windows))
	}
	if !fetcher.windows[0].Start.Equal(now.Add(-3*time.Hour)) || !fetcher.windows[0].End.Equal(now) {
		t.Errorf("window = %+v", fetcher.windows[0])
	}
	if result.Trigger != TriggerRecent || result.Reason != OutcomeNoData {
		t.Errorf("result = %+v", result)
	}

	if _, err := reconciler.CollectLastNHours(context.Background(), 0); err == nil {
		t.Error("expected validation error for zero hours")
	}
}

func TestCollectRange_ClipsAndClamps(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &recordingFetcher{}
	reconciler := newTestReconciler(env, fetcher, now)

	_, err := reconciler.CollectRange(context.Background(), now.Add(-200*24*time.Hour), now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("CollectRange: %v", err)
	}

	got := fetcher.windows[0]
	if !got.End.Equal(now) {
		t.Errorf("end = %v, want clipped to %v", got.End, now)
	}
	if want := now.Add(-92 * 24 * time.Hour); !got.Start.Equal(want) {
		t.Errorf("start = %v, want clamped to %v", got.Start, want)
	}
}

func TestCollect_StoresAndCounts(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

	existing := time.Date(2024, 5, 10, 13, 0, 0, 0, time.UTC)
	env.seed(t, existing)

	fetcher := &recordingFetcher{observations: []*models.Observation{
		models.NewObservation(existing, time.UTC),
		models.NewObservation(existing.Add(time.Hour), time.UTC),
		models.NewObservation(existing.Add(2*time.Hour), time.UTC),
	}}
	reconciler := newTestReconciler(env, fetcher, now)

	result, err := reconciler.CollectLastNHours(context.Background(), 2)
	if err != nil {
		t.Fatalf("CollectLastNHours: %v", err)
	}
	if result.Fetched != 3 || result.Inserted != 2 || result.Duplicates != 1 {
		t.Errorf("result = %+v, want fetched 3 inserted 2 duplicates 1", result)
	}
	if got := testutil.ToFloat64(env.metrics.CollectionInsertedTotal); got != 2 {
		t.Errorf("inserted counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(env.metrics.CollectionRunsTotal.WithLabelValues(TriggerRecent, OutcomeStored)); got != 1 {
		t.Errorf("runs{recent,stored} = %v, want 1", got)
	}
}

func TestCollect_MalformedResponseLeavesStoreUntouched(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	env.seed(t, now.Add(-6*time.Hour))

	source := &fakeSource{err: &openmeteo.DecodeError{Err: errors.New("invalid character")}}
	fetcher := NewRangeFetcher(source, env.logger, env.metrics)
	reconciler := newTestReconciler(env, fetcher, now)

	result, err := reconciler.CollectMissing(context.Background())
	if err != nil {
		t.Fatalf("CollectMissing: %v", err)
	}
	if result.Fetched != 0 || result.Inserted != 0 {
		t.Errorf("result = %+v", result)
	}
	if n := env.count(t); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestCollect_StorageErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	reconciler := newTestReconciler(env, &recordingFetcher{}, now)

	env.db.Close()

	_, err := reconciler.CollectMissing(context.Background())
	if err == nil {
		t.Fatal("expected storage error")
	}
	var se *repository.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *repository.StorageError in chain, got %v", err)
	}
	if se.Op != "latest_timestamp" {
		t.Errorf("Op = %s", se.Op)
	}
}

func TestCollect_RunIDFromContext(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	reconciler := newTestReconciler(env, &recordingFetcher{}, now)

	ctx := logging.WithRequestID(context.Background(), "req-123")
	result, err := reconciler.CollectLastNHours(ctx, 1)
	if err != nil {
		t.Fatalf("CollectLastNHours: %v", err)
	}
	if result.RunID != "req-123" {
		t.Errorf("RunID = %s, want req-123", result.RunID)
	}
}

func TestEndToEnd_TwentyFourHours(t *testing.T) {
	env := newTestEnv(t)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := day.Add(23*time.Hour + 30*time.Minute)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, dayPayload(day, 24))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.Config{
		BaseURL:  server.URL,
		Location: time.UTC,
	}, server.Client())
	reconciler := newTestReconciler(env, NewRangeFetcher(client, env.logger, env.metrics), now)

	result, err := reconciler.CollectMissing(context.Background())
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if result.Inserted != 24 || result.Duplicates != 0 {
		t.Errorf("first pass = %+v, want 24 inserted", result)
	}
	if n := env.count(t); n != 24 {
		t.Errorf("rows = %d, want 24", n)
	}
	latest, ok, err := env.repo.LatestTimestamp(context.Background())
	if err != nil || !ok {
		t.Fatalf("LatestTimestamp = %v, %v, %v", latest, ok, err)
	}
	if want := day.Add(23 * time.Hour); !latest.Equal(want) {
		t.Errorf("latest = %v, want %v", latest, want)
	}

	result, err = reconciler.CollectMissing(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !result.Skipped {
		t.Errorf("second pass = %+v, want skipped", result)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if n := env.count(t); n != 24 {
		t.Errorf("rows after rerun = %d, want 24", n)
	}
}

func dayPayload(start time.Time, hours int) string {
	times := make([]string, hours)
	temps := make([]string, hours)
	for i := 0; i < hours; i++ {
		times[i] = `"` + start.Add(time.Duration(i)*time.Hour).Format(openmeteo.HourlyTimeLayout) + `"`
		temps[i] = fmt.Sprintf("%d.5", i)
	}
	return `{"hourly": {"time": [` + strings.Join(times, ",") + `], "temperature_2m": [` + strings.Join(temps, ",") + `]}}`
}

func timePtr(t time.Time) *time.Time {
	return &t
}
