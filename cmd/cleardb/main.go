package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"meteo-collector/internal/config"
	"meteo-collector/internal/repository"
	"meteo-collector/internal/services"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

func main() {
	clearSensors := flag.Bool("sensors", false, "Also clear the plant sensor readings")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	loc, err := cfg.Weather.LoadLocation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timezone: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("meteo-cleardb", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("meteo_cleardb")
	ctx := context.Background()

	db, err := database.Open(ctx, &database.Config{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, loc, logger, metricsCollector)
	sensorRepo := repository.NewSensorRepository(db, logger, metricsCollector)
	weatherService := services.NewWeatherService(weatherRepo, logger, metricsCollector)

	before, err := weatherRepo.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count weather records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Printf("weather_data currently holds %d records\n", before)
	if *clearSensors {
		fmt.Println("sensor_readings will be cleared as well")
	}
	fmt.Printf("Type %s to delete them: ", services.ClearConfirmation)

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(os.Stderr, "\nNo confirmation received, nothing deleted")
		os.Exit(1)
	}

	deleted, err := weatherService.Clear(ctx, strings.TrimSpace(answer))
	if err != nil {
		if errors.Is(err, services.ErrConfirmationRequired) {
			fmt.Println("Confirmation not given, nothing deleted")
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to clear weather data: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d weather records\n", deleted)

	if *clearSensors {
		n, err := sensorRepo.Clear(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear sensor readings: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d sensor readings\n", n)
	}

	vacuumCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := db.Vacuum(vacuumCtx); err != nil {
		logger.Warn(ctx, "[CLEARDB_VACUUM_ERROR] VACUUM failed", logging.Fields{"error": err.Error()})
	}

	after, err := weatherRepo.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to verify clear: %v\n", err)
		os.Exit(1)
	}
	if after != 0 {
		fmt.Fprintf(os.Stderr, "Verification failed: %d weather records remain\n", after)
		os.Exit(1)
	}
	fmt.Println("Verified: weather_data is empty")
}
