package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"meteo-collector/internal/config"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("meteo-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Open creates the schema when it is missing
	db, err := database.Open(ctx, &database.Config{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, metrics.NewCollector("meteo_migrate"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database successfully\n", db.DriverName())

	// Running it again is a no-op
	if err := db.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create schema: %v\n", err)
		os.Exit(1)
	}

	for _, table := range []string{"weather_data", "sensor_readings"} {
		var count int
		if err := db.GetContext(ctx, "count_"+table, &count, "SELECT COUNT(*) FROM "+table); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to inspect table %s: %v\n", table, err)
			os.Exit(1)
		}
		fmt.Printf("Table %-16s ready (%d rows)\n", table, count)
	}

	fmt.Println("Migration completed successfully")
}
