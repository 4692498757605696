package database

import (
	"context"
	"fmt"
)

// The weather table and the plant sensor table share one file but are never joined.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS sensor_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		moisture INTEGER NOT NULL,
		light INTEGER NOT NULL,
		temperature INTEGER NOT NULL,
		time_of_day INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sensor_readings_timestamp ON sensor_readings(timestamp);

	CREATE TABLE IF NOT EXISTS weather_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		temperature REAL,
		humidity REAL,
		pressure REAL,
		wind_speed REAL,
		wind_direction REAL,
		precipitation REAL,
		visibility REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(date, time)
	);
`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGSERIAL PRIMARY KEY,
		timestamp TEXT NOT NULL,
		moisture INTEGER NOT NULL,
		light INTEGER NOT NULL,
		temperature INTEGER NOT NULL,
		time_of_day INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sensor_readings_timestamp ON sensor_readings(timestamp);

	CREATE TABLE IF NOT EXISTS weather_data (
		id BIGSERIAL PRIMARY KEY,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		temperature DOUBLE PRECISION,
		humidity DOUBLE PRECISION,
		pressure DOUBLE PRECISION,
		wind_speed DOUBLE PRECISION,
		wind_direction DOUBLE PRECISION,
		precipitation DOUBLE PRECISION,
		visibility DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(date, time)
	);
`

// CreateSchema creates all tables and indices. Safe to call on every start.
func (d *DB) CreateSchema(ctx context.Context) error {
	schema := sqliteSchema
	if d.DriverName() == DriverPostgres {
		schema = postgresSchema
	}

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		d.metrics.RecordDBError("schema_error")
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
