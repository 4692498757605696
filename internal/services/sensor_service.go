package services

import (
	"context"
	"fmt"

	"meteo-collector/internal/models"
	"meteo-collector/internal/repository"
	"meteo-collector/pkg/logging"
)

// DefaultSensorLimit mirrors the plant monitor's recent-readings window
const DefaultSensorLimit = 100

// SensorService handles plant sensor readings
type SensorService struct {
	repo   repository.SensorRepository
	logger *logging.StructuredLogger
}

// NewSensorService creates a new sensor service
func NewSensorService(repo repository.SensorRepository, logger *logging.StructuredLogger) *SensorService {
	return &SensorService{repo: repo, logger: logger}
}

// Record validates and stores one reading
func (s *SensorService) Record(ctx context.Context, reading *models.SensorReading) error {
	return s.repo.SaveReading(ctx, reading)
}

// Recent returns the newest readings. A zero limit means DefaultSensorLimit.
func (s *SensorService) Recent(ctx context.Context, limit int) ([]*models.SensorReading, error) {
	if limit == 0 {
		limit = DefaultSensorLimit
	}
	if limit < 0 || limit > MaxLatestLimit {
		return nil, &models.ValidationError{
			Field:   "limit",
			Value:   fmt.Sprintf("%d", limit),
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxLatestLimit),
		}
	}
	return s.repo.RecentReadings(ctx, limit)
}
