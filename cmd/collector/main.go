package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"meteo-collector/internal/config"
	"meteo-collector/internal/handlers"
	"meteo-collector/internal/openmeteo"
	"meteo-collector/internal/repository"
	"meteo-collector/internal/scheduler"
	"meteo-collector/internal/services"
	"meteo-collector/pkg/database"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

const version = "1.0.0"

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

	loc, err := cfg.Weather.LoadLocation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timezone: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("meteo-collector", version, logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting weather collector", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"db_path":     cfg.Database.Path,
		"latitude":    cfg.Weather.Latitude,
		"longitude":   cfg.Weather.Longitude,
		"timezone":    cfg.Weather.Timezone,
		"interval":    cfg.Collection.Interval.String(),
	})

	metricsCollector := metrics.NewCollector("meteo")

	db, err := database.Open(ctx, &database.Config{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		MonitorInterval: cfg.Database.MonitorInterval,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open database", logging.Fields{}, err)
	}
	defer db.Close()

	// Repositories
	weatherRepo := repository.NewWeatherRepository(db, loc, logger, metricsCollector)
	sensorRepo := repository.NewSensorRepository(db, logger, metricsCollector)

	// Collection pipeline
	client := openmeteo.NewClient(openmeteo.Config{
		BaseURL:       cfg.Weather.BaseURL,
		Latitude:      cfg.Weather.Latitude,
		Longitude:     cfg.Weather.Longitude,
		Location:      loc,
		Timeout:       cfg.Weather.HTTPTimeout,
		RatePerSecond: cfg.Weather.RatePerSecond,
	}, nil)
	fetcher := services.NewRangeFetcher(client, logger, metricsCollector)

	reconcilerCfg := services.DefaultReconcilerConfig()
	reconcilerCfg.InitialBackfill = cfg.Collection.InitialBackfill
	reconcilerCfg.StaleAfter = cfg.Collection.StaleAfter
	reconciler := services.NewReconciler(weatherRepo, fetcher, reconcilerCfg, loc, logger, metricsCollector)

	// Read API services
	weatherService := services.NewWeatherService(weatherRepo, logger, metricsCollector)
	statsService := services.NewStatisticsService(weatherRepo, sensorRepo, logger, metricsCollector)
	sensorService := services.NewSensorService(sensorRepo, logger)

	sched := scheduler.New(reconciler, scheduler.Config{
		Interval:           cfg.Collection.Interval,
		RecentRefreshHours: cfg.Collection.RecentRefreshHours,
		RunTimeout:         cfg.Collection.RunTimeout,
	}, loc, logger)

	// Startup pass. Failures are logged and the service keeps starting.
	startupCtx, cancelStartup := context.WithTimeout(ctx, cfg.Collection.RunTimeout)
	if err := sched.RunNow(startupCtx); err != nil {
		logger.Error(ctx, "[STARTUP_COLLECTION_ERROR] Initial collection failed", logging.Fields{}, err)
	}
	cancelStartup()
	logLatest(ctx, weatherService, logger)

	if err := sched.Start(); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to start scheduler", logging.Fields{}, err)
	}

	router := handlers.NewRouter(
		handlers.NewWeatherHandler(weatherService, statsService, reconciler, db, logger, metricsCollector),
		handlers.NewSensorHandler(sensorService, statsService, logger, metricsCollector),
		logger,
		metricsCollector,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address":  server.Addr,
			"next_run": sched.NextRun().Format("2006-01-02 15:04:05"),
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down collector...", logging.Fields{})

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Collector stopped", logging.Fields{})
}

// logLatest logs the three newest stored rows
func logLatest(ctx context.Context, weatherService *services.WeatherService, logger *logging.StructuredLogger) {
	latest, err := weatherService.Latest(ctx, 3)
	if err != nil {
		logger.Warn(ctx, "[STARTUP_LATEST_ERROR] Could not read latest observations", logging.Fields{
			"error": err.Error(),
		})
		return
	}

	for _, obs := range latest {
		fields := logging.Fields{
			"date": obs.Date,
			"time": obs.Time,
		}
		if obs.Temperature != nil {
			fields["temperature"] = *obs.Temperature
		}
		if obs.Humidity != nil {
			fields["humidity"] = *obs.Humidity
		}
		logger.Info(ctx, "[STARTUP_LATEST] Stored observation", fields)
	}
}
