package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"meteo-collector/internal/config"
	"meteo-collector/internal/models"
	"meteo-collector/internal/openmeteo"
	"meteo-collector/internal/repository"
	"meteo-collector/internal/services"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

func main() {
	// Parse command-line flags
	hours := flag.Int("hours", 0, "Force a refresh of the last N hours (0 reconciles the gap since the newest record)")
	showStats := flag.Bool("stats", false, "Print store statistics after collecting")
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
	if *hours < 0 || *hours > openmeteo.MaxPastDays*24 {
		fmt.Fprintf(os.Stderr, "-hours must be between 0 and %d\n", openmeteo.MaxPastDays*24)
		os.Exit(2)
	}

	loc, err := cfg.Weather.LoadLocation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timezone: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("meteo-collect", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("meteo_collect")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Collection.RunTimeout)
	defer cancel()

	logger.Info(ctx, "[COLLECT_START] Starting one-shot collection", logging.Fields{
		"hours":   *hours,
		"db_path": cfg.Database.Path,
	})

	db, err := database.Open(ctx, &database.Config{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[COLLECT_ERROR] Failed to open database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, loc, logger, metricsCollector)
	client := openmeteo.NewClient(openmeteo.Config{
		BaseURL:       cfg.Weather.BaseURL,
		Latitude:      cfg.Weather.Latitude,
		Longitude:     cfg.Weather.Longitude,
		Location:      loc,
		Timeout:       cfg.Weather.HTTPTimeout,
		RatePerSecond: cfg.Weather.RatePerSecond,
	}, nil)

	reconcilerCfg := services.DefaultReconcilerConfig()
	reconcilerCfg.InitialBackfill = cfg.Collection.InitialBackfill
	reconcilerCfg.StaleAfter = cfg.Collection.StaleAfter
	reconciler := services.NewReconciler(weatherRepo, services.NewRangeFetcher(client, logger, metricsCollector), reconcilerCfg, loc, logger, metricsCollector)

	start := time.Now()
	var result *models.CollectionResult
	if *hours > 0 {
		result, err = reconciler.CollectLastNHours(ctx, *hours)
	} else {
		result, err = reconciler.CollectMissing(ctx)
	}
	if err != nil {
		db.Close()
		logger.Fatal(ctx, "[COLLECT_ERROR] Collection failed", logging.Fields{}, err)
	}

	printResult(result, time.Since(start))

	if *showStats {
		statsService := services.NewStatisticsService(weatherRepo, repository.NewSensorRepository(db, logger, metricsCollector), logger, metricsCollector)
		stats, err := statsService.WeatherStats(ctx)
		if err != nil {
			logger.Error(ctx, "[STATS_ERROR] Statistics query failed", logging.Fields{}, err)
			fmt.Printf("Statistics query failed: %v\n", err)
		} else {
			printStats(stats)
		}
	}

	logger.Info(ctx, "[COLLECT_COMPLETE] Collection finished", logging.Fields{
		"run_id":   result.RunID,
		"inserted": result.Inserted,
	})
}

func printResult(result *models.CollectionResult, elapsed time.Duration) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("COLLECTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:             %s\n", result.RunID)
	fmt.Printf("Trigger:            %s\n", result.Trigger)
	if result.Window != nil {
		fmt.Printf("Window:             %s .. %s\n",
			result.Window.Start.Format(time.RFC3339), result.Window.End.Format(time.RFC3339))
	}
	if result.Skipped {
		fmt.Printf("Skipped:            %s\n", result.Reason)
	}
	fmt.Printf("Fetched Rows:       %d\n", result.Fetched)
	fmt.Printf("Inserted Rows:      %d\n", result.Inserted)
	fmt.Printf("Duplicate Rows:     %d\n", result.Duplicates)
	fmt.Printf("Duration:           %v\n", elapsed.Round(time.Millisecond))
}

func printStats(stats *models.WeatherStats) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("STORE STATISTICS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Records:      %d\n", stats.TotalRecords)
	if stats.FirstRecord != nil && stats.LastRecord != nil {
		fmt.Printf("Range:              %s .. %s\n",
			stats.FirstRecord.Format(time.RFC3339), stats.LastRecord.Format(time.RFC3339))
	}
	fmt.Printf("Avg Temperature:    %.1f\n", stats.Averages.Temperature)
	fmt.Printf("Avg Humidity:       %.1f\n", stats.Averages.Humidity)
	fmt.Printf("Avg Pressure:       %.1f\n", stats.Averages.Pressure)
}
