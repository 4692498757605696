package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/internal/repository"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// ClearConfirmation is the exact token required to delete all weather data
const ClearConfirmation = "YES"

// Read limits
const (
	DefaultLatestLimit = 10
	MaxLatestLimit     = 1000
)

// ErrConfirmationRequired is returned when a clear is attempted without the confirmation token
var ErrConfirmationRequired = errors.New("clear requires confirmation token " + ClearConfirmation)

// WeatherService handles weather data reads for consumers
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Latest returns the newest observations. A zero limit means DefaultLatestLimit.
func (s *WeatherService) Latest(ctx context.Context, limit int) ([]*models.Observation, error) {
	if limit == 0 {
		limit = DefaultLatestLimit
	}
	if limit < 0 || limit > MaxLatestLimit {
		return nil, &models.ValidationError{
			Field:   "limit",
			Value:   fmt.Sprintf("%d", limit),
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxLatestLimit),
		}
	}
	return s.repo.ReadLatest(ctx, limit)
}

// Range returns observations in [start, end]
func (s *WeatherService) Range(ctx context.Context, start, end time.Time) ([]*models.Observation, error) {
	if end.Before(start) {
		return nil, &models.ValidationError{
			Field:   "end",
			Value:   end.Format(time.RFC3339),
			Message: "end must not precede start",
		}
	}
	return s.repo.ReadRange(ctx, start, end)
}

// All returns every stored observation
func (s *WeatherService) All(ctx context.Context) ([]*models.Observation, error) {
	return s.repo.ReadAll(ctx)
}

// Clear deletes all weather data once the caller passes the confirmation token
func (s *WeatherService) Clear(ctx context.Context, confirmation string) (int64, error) {
	if confirmation != ClearConfirmation {
		return 0, ErrConfirmationRequired
	}

	deleted, err := s.repo.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordsClearedTotal.Add(float64(deleted))

	s.logger.Warn(ctx, "[WEATHER_CLEAR] All weather records deleted", logging.Fields{
		"deleted": deleted,
	})
	return deleted, nil
}
