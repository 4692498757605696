package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()

	db, err := Open(context.Background(), &Config{
		Driver:       DriverSQLite,
		Path:         path,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logging.NewNopLogger(), metrics.NewCollector("test"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return db
}

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "plant_data.db")

	db := openTestDB(t, path)
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	ctx := context.Background()
	for _, table := range []string{"weather_data", "sensor_readings"} {
		var count int
		err := db.GetContext(ctx, "test", &count,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestCreateSchema_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant_data.db")

	db := openTestDB(t, path)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "insert", "INSERT INTO weather_data (date, time, temperature) VALUES (?, ?, ?)",
		"2024-05-01", "10:00:00", 12.5); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := db.CreateSchema(ctx); err != nil {
		t.Fatalf("second CreateSchema: %v", err)
	}
	db.Close()

	// Reopening runs CreateSchema again and must keep existing rows.
	db = openTestDB(t, path)
	defer db.Close()

	var count int
	if err := db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM weather_data"); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows after reopen = %d, want 1", count)
	}
}

func TestUniqueDateTimeConstraint(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "plant_data.db"))
	defer db.Close()

	ctx := context.Background()
	insert := "INSERT INTO weather_data (date, time) VALUES (?, ?)"
	if _, err := db.ExecContext(ctx, "insert", insert, "2024-05-01", "10:00:00"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, "insert", insert, "2024-05-01", "10:00:00"); err == nil {
		t.Fatal("expected UNIQUE(date, time) violation on second insert")
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty sqlite path", Config{Driver: DriverSQLite}},
		{"empty postgres dsn", Config{Driver: DriverPostgres}},
		{"unknown driver", Config{Driver: "mysql", Path: "x.db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			_, err := Open(context.Background(), &cfg, logging.NewNopLogger(), metrics.NewCollector("test"))
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHealthCheckAndVacuum(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "plant_data.db"))
	defer db.Close()

	ctx := context.Background()
	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := db.Vacuum(ctx); err != nil {
		t.Errorf("Vacuum: %v", err)
	}
	if db.DriverName() != DriverSQLite {
		t.Errorf("DriverName = %s", db.DriverName())
	}
}
