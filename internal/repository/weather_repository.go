package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// WeatherRepository provides data access for hourly weather observations
type WeatherRepository interface {
	// Write operations
	UpsertBatch(ctx context.Context, observations []*models.Observation) (inserted, duplicates int, err error)
	Clear(ctx context.Context) (int64, error)

	// Read operations
	LatestTimestamp(ctx context.Context) (time.Time, bool, error)
	ReadLatest(ctx context.Context, limit int) ([]*models.Observation, error)
	ReadAll(ctx context.Context) ([]*models.Observation, error)
	ReadRange(ctx context.Context, start, end time.Time) ([]*models.Observation, error)
	Stats(ctx context.Context) (*models.WeatherStats, error)
	Count(ctx context.Context) (int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

const observationColumns = `id, date, time, temperature, humidity, pressure,
	wind_speed, wind_direction, precipitation, visibility, created_at`

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db       *database.DB
	location *time.Location
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewWeatherRepository creates a new weather repository. Stored date and time
// strings are interpreted in loc.
func NewWeatherRepository(db *database.DB, loc *time.Location, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:       db,
		location: loc,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// UpsertBatch inserts observations that are not stored yet in a single transaction.
// Rows whose (date, time) already exists are counted as duplicates and left untouched.
func (r *weatherRepository) UpsertBatch(ctx context.Context, observations []*models.Observation) (int, int, error) {
	if len(observations) == 0 {
		return 0, 0, nil
	}

	timer := time.Now()
	inserted, duplicates := 0, 0
	defer func() {
		r.metrics.CollectionBatchSize.Observe(float64(len(observations)))
		r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
			"count":       len(observations),
			"inserted":    inserted,
			"duplicates":  duplicates,
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, 0, &StorageError{Op: "upsert_batch", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO weather_data (
			date, time, temperature, humidity, pressure,
			wind_speed, wind_direction, precipitation, visibility
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, time) DO NOTHING
	`))
	if err != nil {
		return 0, 0, &StorageError{Op: "upsert_batch", Err: err}
	}
	defer stmt.Close()

	for _, obs := range observations {
		res, err := stmt.ExecContext(ctx,
			obs.Date,
			obs.Time,
			obs.Temperature,
			obs.Humidity,
			obs.Pressure,
			obs.WindSpeed,
			obs.WindDirection,
			obs.Precipitation,
			obs.Visibility,
		)
		if err != nil {
			r.metrics.RecordDBError("upsert_error")
			return 0, 0, &StorageError{Op: "upsert_batch", Err: err}
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, 0, &StorageError{Op: "upsert_batch", Err: err}
		}
		if affected > 0 {
			inserted++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		inserted, duplicates = 0, 0
		return 0, 0, &StorageError{Op: "upsert_batch", Err: err}
	}

	return inserted, duplicates, nil
}

// LatestTimestamp returns the newest stored observation instant. ok is false when the table is empty.
func (r *weatherRepository) LatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	var row struct {
		Date string `db:"date"`
		Time string `db:"time"`
	}

	err := r.db.GetContext(ctx, "latest_timestamp", &row, `
		SELECT date, time FROM weather_data
		ORDER BY date DESC, time DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "latest_timestamp", Err: err}
	}

	ts, err := models.ParseDateTime(row.Date, row.Time, r.location)
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "latest_timestamp", Err: err}
	}
	return ts, true, nil
}

// ReadLatest returns up to limit observations, newest first
func (r *weatherRepository) ReadLatest(ctx context.Context, limit int) ([]*models.Observation, error) {
	observations := []*models.Observation{}
	err := r.db.SelectContext(ctx, "read_latest", &observations, `
		SELECT `+observationColumns+`
		FROM weather_data
		ORDER BY date DESC, time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &StorageError{Op: "read_latest", Err: err}
	}
	return observations, nil
}

// ReadAll returns every stored observation, newest first
func (r *weatherRepository) ReadAll(ctx context.Context) ([]*models.Observation, error) {
	observations := []*models.Observation{}
	err := r.db.SelectContext(ctx, "read_all", &observations, `
		SELECT `+observationColumns+`
		FROM weather_data
		ORDER BY date DESC, time DESC
	`)
	if err != nil {
		return nil, &StorageError{Op: "read_all", Err: err}
	}
	return observations, nil
}

// ReadRange returns observations whose timestamp lies in [start, end], newest first
func (r *weatherRepository) ReadRange(ctx context.Context, start, end time.Time) ([]*models.Observation, error) {
	layout := models.DateLayout + " " + models.TimeLayout

	observations := []*models.Observation{}
	err := r.db.SelectContext(ctx, "read_range", &observations, `
		SELECT `+observationColumns+`
		FROM weather_data
		WHERE (date || ' ' || time) >= ? AND (date || ' ' || time) <= ?
		ORDER BY date DESC, time DESC
	`, start.In(r.location).Format(layout), end.In(r.location).Format(layout))
	if err != nil {
		return nil, &StorageError{Op: "read_range", Err: err}
	}
	return observations, nil
}

// Clear deletes every observation and resets the id sequence. Callers own the confirmation step.
func (r *weatherRepository) Clear(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, &StorageError{Op: "clear", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM weather_data")
	if err != nil {
		return 0, &StorageError{Op: "clear", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "clear", Err: err}
	}

	resetQuery := "DELETE FROM sqlite_sequence WHERE name = 'weather_data'"
	if r.db.DriverName() == database.DriverPostgres {
		resetQuery = "ALTER SEQUENCE weather_data_id_seq RESTART WITH 1"
	}
	if _, err := tx.ExecContext(ctx, resetQuery); err != nil {
		return 0, &StorageError{Op: "clear", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "clear", Err: err}
	}

	r.logger.Info(ctx, "[REPO_CLEAR] Weather data cleared", logging.Fields{
		"deleted": deleted,
	})

	return deleted, nil
}

// Stats returns record count, covered time range and rounded per-field averages
func (r *weatherRepository) Stats(ctx context.Context) (*models.WeatherStats, error) {
	timer := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[REPO_STATS] Statistics calculated", logging.Fields{
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	var result struct {
		TotalRecords  int             `db:"total_records"`
		FirstRecord   sql.NullString  `db:"first_record"`
		LastRecord    sql.NullString  `db:"last_record"`
		Temperature   sql.NullFloat64 `db:"avg_temperature"`
		Humidity      sql.NullFloat64 `db:"avg_humidity"`
		Pressure      sql.NullFloat64 `db:"avg_pressure"`
		WindSpeed     sql.NullFloat64 `db:"avg_wind_speed"`
		Precipitation sql.NullFloat64 `db:"avg_precipitation"`
		Visibility    sql.NullFloat64 `db:"avg_visibility"`
	}

	err := r.db.GetContext(ctx, "stats", &result, `
		SELECT
			COUNT(*) AS total_records,
			MIN(date || ' ' || time) AS first_record,
			MAX(date || ' ' || time) AS last_record,
			AVG(temperature) AS avg_temperature,
			AVG(humidity) AS avg_humidity,
			AVG(pressure) AS avg_pressure,
			AVG(wind_speed) AS avg_wind_speed,
			AVG(precipitation) AS avg_precipitation,
			AVG(visibility) AS avg_visibility
		FROM weather_data
	`)
	if err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}

	stats := &models.WeatherStats{
		TotalRecords: result.TotalRecords,
		Averages: models.WeatherAverages{
			Temperature:   roundAverage(result.Temperature),
			Humidity:      roundAverage(result.Humidity),
			Pressure:      roundAverage(result.Pressure),
			WindSpeed:     roundAverage(result.WindSpeed),
			Precipitation: roundAverage(result.Precipitation),
			Visibility:    roundAverage(result.Visibility),
		},
	}

	if stats.FirstRecord, err = r.parseCombined(result.FirstRecord); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	if stats.LastRecord, err = r.parseCombined(result.LastRecord); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}

	return stats, nil
}

// Count returns the number of stored observations
func (r *weatherRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM weather_data"); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return count, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func (r *weatherRepository) parseCombined(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(models.DateLayout+" "+models.TimeLayout, s.String, r.location)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func roundAverage(v sql.NullFloat64) float64 {
	if !v.Valid {
		return 0
	}
	return math.Round(v.Float64*10) / 10
}
