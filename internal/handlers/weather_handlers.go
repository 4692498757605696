package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"meteo-collector/internal/models"
	"meteo-collector/internal/repository"
	"meteo-collector/internal/services"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// MaxCollectHours is the largest forced refresh window, the upstream's 92 day retention
const MaxCollectHours = 92 * 24

// Collector runs reconciliation passes on demand
type Collector interface {
	CollectMissing(ctx context.Context) (*models.CollectionResult, error)
	CollectLastNHours(ctx context.Context, hours int) (*models.CollectionResult, error)
}

// HealthChecker reports whether the store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// WeatherHandler handles weather API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	statsService   *services.StatisticsService
	collector      Collector
	health         HealthChecker
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	statsService *services.StatisticsService,
	collector Collector,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		statsService:   statsService,
		collector:      collector,
		health:         health,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ListResponse wraps a list of records with its size
type ListResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

// GetLatest handles GET /api/weather/latest
func (h *WeatherHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.sendError(w, r, "invalid limit, expected integer", http.StatusBadRequest)
		return
	}

	observations, err := h.weatherService.Latest(ctx, limit)
	if err != nil {
		h.handleServiceError(w, r, "[API_GET_LATEST_ERROR] Failed to get latest observations", err)
		return
	}

	h.sendJSON(w, ListResponse{Data: observations, Count: len(observations)}, http.StatusOK)
}

// GetObservations handles GET /api/weather
func (h *WeatherHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	var observations []*models.Observation
	var err error

	if startStr == "" && endStr == "" {
		observations, err = h.weatherService.All(ctx)
	} else {
		start, parseErr := time.Parse(time.RFC3339, startStr)
		if parseErr != nil {
			h.sendError(w, r, "invalid start format, expected RFC3339", http.StatusBadRequest)
			return
		}
		end := time.Now()
		if endStr != "" {
			end, parseErr = time.Parse(time.RFC3339, endStr)
			if parseErr != nil {
				h.sendError(w, r, "invalid end format, expected RFC3339", http.StatusBadRequest)
				return
			}
		}
		observations, err = h.weatherService.Range(ctx, start, end)
	}

	if err != nil {
		h.handleServiceError(w, r, "[API_GET_OBSERVATIONS_ERROR] Failed to get observations", err)
		return
	}

	h.sendJSON(w, ListResponse{Data: observations, Count: len(observations)}, http.StatusOK)
}

// GetStatistics handles GET /api/weather/stats
func (h *WeatherHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.WeatherStats(r.Context())
	if err != nil {
		h.handleServiceError(w, r, "[API_GET_STATISTICS_ERROR] Failed to get statistics", err)
		return
	}

	h.sendJSON(w, stats, http.StatusOK)
}

// ClearObservations handles DELETE /api/weather?confirm=YES
func (h *WeatherHandler) ClearObservations(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.weatherService.Clear(r.Context(), r.URL.Query().Get("confirm"))
	if err != nil {
		h.handleServiceError(w, r, "[API_CLEAR_ERROR] Failed to clear weather data", err)
		return
	}

	h.sendJSON(w, map[string]int64{"deleted": deleted}, http.StatusOK)
}

// TriggerCollection handles POST /api/weather/collect
func (h *WeatherHandler) TriggerCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hours, err := intParam(r, "hours", 0)
	if err != nil || hours < 0 || hours > MaxCollectHours {
		h.sendError(w, r, "invalid hours, expected integer between 1 and 2208", http.StatusBadRequest)
		return
	}

	var result *models.CollectionResult
	if hours == 0 {
		result, err = h.collector.CollectMissing(ctx)
	} else {
		result, err = h.collector.CollectLastNHours(ctx, hours)
	}
	if err != nil {
		h.handleServiceError(w, r, "[API_COLLECT_ERROR] Manual collection failed", err)
		return
	}

	h.logger.Info(ctx, "[API_COLLECT] Manual collection completed", logging.Fields{
		"trigger":  result.Trigger,
		"inserted": result.Inserted,
	})
	h.sendJSON(w, result, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Database unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["database"] = err.Error()
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	if freshness, err := h.statsService.Freshness(ctx); err == nil {
		status["latest_record"] = freshness.LatestRecord
		status["latest_record_age_seconds"] = freshness.AgeSeconds
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *WeatherHandler) handleServiceError(w http.ResponseWriter, r *http.Request, logMessage string, err error) {
	sendServiceError(w, r, h.logger, h.metrics, logMessage, err)
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	sendJSON(w, data, statusCode)
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	sendError(w, r, h.metrics, message, statusCode)
}

// RegisterRoutes registers all weather API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/weather/latest", h.GetLatest).Methods("GET")
	router.HandleFunc("/api/weather/stats", h.GetStatistics).Methods("GET")
	router.HandleFunc("/api/weather/collect", h.TriggerCollection).Methods("POST")
	router.HandleFunc("/api/weather", h.GetObservations).Methods("GET")
	router.HandleFunc("/api/weather", h.ClearObservations).Methods("DELETE")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

func sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, r *http.Request, m *metrics.Collector, message string, statusCode int) {
	m.RecordAPIError(errorType(statusCode), routeName(r))

	sendJSON(w, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: logging.RequestID(r.Context()),
	}, statusCode)
}

// sendServiceError maps service and storage errors onto HTTP statuses
func sendServiceError(w http.ResponseWriter, r *http.Request, logger *logging.StructuredLogger, m *metrics.Collector, logMessage string, err error) {
	var validationErr *models.ValidationError
	var storageErr *repository.StorageError

	switch {
	case errors.As(err, &validationErr):
		sendError(w, r, m, validationErr.Message, http.StatusBadRequest)
	case errors.Is(err, services.ErrConfirmationRequired):
		sendError(w, r, m, err.Error(), http.StatusBadRequest)
	case errors.As(err, &storageErr) && storageErr.IsTransient():
		logger.Warn(r.Context(), logMessage, logging.Fields{"error": err.Error()})
		sendError(w, r, m, "storage temporarily unavailable", http.StatusServiceUnavailable)
	default:
		logger.Error(r.Context(), logMessage, logging.Fields{
			"path": r.URL.Path,
		}, err)
		sendError(w, r, m, "internal server error", http.StatusInternalServerError)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func errorType(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "internal_error"
	case statusCode == http.StatusNotFound:
		return "not_found"
	default:
		return "bad_request"
	}
}
