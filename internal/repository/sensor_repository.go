package repository

import (
	"context"
	"database/sql"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// SensorRepository provides data access for plant sensor readings.
// It never reads or writes weather_data.
type SensorRepository interface {
	SaveReading(ctx context.Context, reading *models.SensorReading) error
	RecentReadings(ctx context.Context, limit int) ([]*models.SensorReading, error)
	Stats(ctx context.Context) (*models.SensorStats, error)
	Clear(ctx context.Context) (int64, error)
}

type sensorRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewSensorRepository creates a new sensor repository
func NewSensorRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) SensorRepository {
	return &sensorRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
}

// SaveReading stores one reading. An empty timestamp is stamped with the current local time.
func (r *sensorRepository) SaveReading(ctx context.Context, reading *models.SensorReading) error {
	if reading.Timestamp == "" {
		reading.Timestamp = r.now().Format(models.SensorTimestampLayout)
	}
	if err := reading.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO sensor_readings (timestamp, moisture, light, temperature, time_of_day)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, "insert_sensor_reading", query,
		reading.Timestamp,
		reading.Moisture,
		reading.Light,
		reading.Temperature,
		reading.TimeOfDay,
	)
	if err != nil {
		return &StorageError{Op: "save_reading", Err: err}
	}
	// lib/pq does not report insert ids
	if id, err := res.LastInsertId(); err == nil {
		reading.ID = id
	}

	r.logger.Debug(ctx, "[REPO_SENSOR_SAVE] Sensor reading stored", logging.Fields{
		"timestamp": reading.Timestamp,
	})
	return nil
}

// RecentReadings returns up to limit readings, newest first
func (r *sensorRepository) RecentReadings(ctx context.Context, limit int) ([]*models.SensorReading, error) {
	readings := []*models.SensorReading{}
	err := r.db.SelectContext(ctx, "recent_sensor_readings", &readings, `
		SELECT id, timestamp, moisture, light, temperature, time_of_day
		FROM sensor_readings
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &StorageError{Op: "recent_readings", Err: err}
	}
	return readings, nil
}

// Stats returns count, timestamp range and rounded averages of the readings
func (r *sensorRepository) Stats(ctx context.Context) (*models.SensorStats, error) {
	var result struct {
		TotalRecords int             `db:"total_records"`
		FirstRecord  sql.NullString  `db:"first_record"`
		LastRecord   sql.NullString  `db:"last_record"`
		Moisture     sql.NullFloat64 `db:"avg_moisture"`
		Light        sql.NullFloat64 `db:"avg_light"`
		Temperature  sql.NullFloat64 `db:"avg_temperature"`
	}

	err := r.db.GetContext(ctx, "sensor_stats", &result, `
		SELECT
			COUNT(*) AS total_records,
			MIN(timestamp) AS first_record,
			MAX(timestamp) AS last_record,
			AVG(moisture) AS avg_moisture,
			AVG(light) AS avg_light,
			AVG(temperature) AS avg_temperature
		FROM sensor_readings
	`)
	if err != nil {
		return nil, &StorageError{Op: "sensor_stats", Err: err}
	}

	stats := &models.SensorStats{
		TotalRecords: result.TotalRecords,
		Averages: models.SensorAverages{
			Moisture:    roundAverage(result.Moisture),
			Light:       roundAverage(result.Light),
			Temperature: roundAverage(result.Temperature),
		},
	}
	if result.FirstRecord.Valid {
		stats.FirstRecord = &result.FirstRecord.String
	}
	if result.LastRecord.Valid {
		stats.LastRecord = &result.LastRecord.String
	}
	return stats, nil
}

// Clear deletes every sensor reading
func (r *sensorRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "clear_sensor_readings", "DELETE FROM sensor_readings")
	if err != nil {
		return 0, &StorageError{Op: "clear_sensor_readings", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "clear_sensor_readings", Err: err}
	}
	return deleted, nil
}
