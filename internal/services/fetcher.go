package services

import (
	"context"
	"errors"
	"time"

	"meteo-collector/internal/models"
	"meteo-collector/internal/openmeteo"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// HourlySource returns hourly rows covering the last pastDays days plus today
type HourlySource interface {
	Hourly(ctx context.Context, pastDays int) ([]openmeteo.HourlyRow, error)
	Location() *time.Location
}

// Fetcher turns a time window into observations. Failures yield an empty slice, never an error.
type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time) []*models.Observation
}

// RangeFetcher requests one window from the upstream API and keeps the rows inside it
type RangeFetcher struct {
	source  HourlySource
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewRangeFetcher creates a new range fetcher
func NewRangeFetcher(source HourlySource, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RangeFetcher {
	return &RangeFetcher{
		source:  source,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// PastDays returns how many days of history cover [start, end], capped at the upstream retention
func PastDays(start, end time.Time) int {
	days := int(end.Sub(start)/(24*time.Hour)) + 1
	if days > openmeteo.MaxPastDays {
		return openmeteo.MaxPastDays
	}
	if days < 1 {
		return 1
	}
	return days
}

// Fetch issues a single upstream call for [start, end] and returns the observations inside it,
// bounds included. Transport, status and payload errors are logged and produce no records.
func (f *RangeFetcher) Fetch(ctx context.Context, start, end time.Time) []*models.Observation {
	if end.Before(start) {
		f.logger.Warn(ctx, "[FETCH_INVALID_WINDOW] End precedes start, nothing to fetch", logging.Fields{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		})
		return nil
	}

	pastDays := PastDays(start, end)
	f.logger.Info(ctx, "[FETCH_START] Collecting data for window", logging.Fields{
		"start":     start.Format(time.RFC3339),
		"end":       end.Format(time.RFC3339),
		"past_days": pastDays,
	})

	timer := f.metrics.NewTimer(f.metrics.FetchDuration)
	rows, err := f.source.Hourly(ctx, pastDays)
	duration := timer.ObserveDuration()

	if err != nil {
		errorType := openmeteo.ErrorType(err)
		f.metrics.RecordFetchError(errorType)

		fields := logging.Fields{
			"past_days":   pastDays,
			"error_type":  errorType,
			"duration_ms": duration.Milliseconds(),
		}
		if errors.Is(err, openmeteo.ErrNoHourlyData) {
			f.logger.Warn(ctx, "[FETCH_NO_DATA] No hourly data received from Open-Meteo", fields)
		} else {
			f.logger.Error(ctx, "[FETCH_ERROR] Weather API request failed", fields, err)
		}
		return nil
	}

	loc := f.source.Location()
	observations := make([]*models.Observation, 0, len(rows))
	window := models.CollectionWindow{Start: start, End: end}
	for _, row := range rows {
		if !window.Contains(row.Time) {
			continue
		}
		observations = append(observations, toObservation(row, loc))
	}

	f.metrics.FetchRowsTotal.Add(float64(len(observations)))

	if len(observations) == 0 {
		f.logger.Warn(ctx, "[FETCH_EMPTY_RANGE] No data in requested time range", logging.Fields{
			"rows_received": len(rows),
			"start":         start.Format(time.RFC3339),
			"end":           end.Format(time.RFC3339),
		})
		return nil
	}

	f.logger.Info(ctx, "[FETCH_COMPLETE] Weather rows received", logging.Fields{
		"rows_received": len(rows),
		"rows_in_range": len(observations),
		"duration_ms":   duration.Milliseconds(),
	})

	return observations
}

func toObservation(row openmeteo.HourlyRow, loc *time.Location) *models.Observation {
	obs := models.NewObservation(row.Time, loc)
	obs.Temperature = row.Temperature
	obs.Humidity = row.Humidity
	obs.Pressure = row.Pressure
	obs.WindSpeed = row.WindSpeed
	obs.WindDirection = row.WindDirection
	obs.Precipitation = row.Precipitation
	obs.Visibility = row.Visibility
	return obs
}
