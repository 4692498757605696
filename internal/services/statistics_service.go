package services

import (
	"context"
	"fmt"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/internal/repository"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// StatisticsService computes aggregate views over the weather and sensor tables
type StatisticsService struct {
	weather repository.WeatherRepository
	sensors repository.SensorRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// Freshness describes how old the newest stored observation is
type Freshness struct {
	LatestRecord *time.Time `json:"latest_record"`
	AgeSeconds   float64    `json:"age_seconds"`
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(weather repository.WeatherRepository, sensors repository.SensorRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		weather: weather,
		sensors: sensors,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
}

// WeatherStats returns count, time range and averages of the stored observations
func (s *StatisticsService) WeatherStats(ctx context.Context) (*models.WeatherStats, error) {
	stats, err := s.weather.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate weather statistics: %w", err)
	}

	s.logger.Debug(ctx, "[STATS_WEATHER] Weather statistics calculated", logging.Fields{
		"total_records": stats.TotalRecords,
	})
	return stats, nil
}

// SensorStats returns count, time range and averages of the plant readings
func (s *StatisticsService) SensorStats(ctx context.Context) (*models.SensorStats, error) {
	stats, err := s.sensors.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sensor statistics: %w", err)
	}
	return stats, nil
}

// Freshness reports the age of the newest observation and updates the age gauge
func (s *StatisticsService) Freshness(ctx context.Context) (*Freshness, error) {
	latest, ok, err := s.weather.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest observation: %w", err)
	}
	if !ok {
		return &Freshness{}, nil
	}

	age := s.now().Sub(latest).Seconds()
	s.metrics.LatestObservationAge.Set(age)
	return &Freshness{LatestRecord: &latest, AgeSeconds: age}, nil
}
