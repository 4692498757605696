package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"meteo-collector/internal/models"
	"meteo-collector/internal/services"
	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// SensorHandler handles plant sensor endpoints
type SensorHandler struct {
	sensorService *services.SensorService
	statsService  *services.StatisticsService
	logger        *logging.StructuredLogger
	metrics       *metrics.Collector
}

// NewSensorHandler creates a new sensor handler
func NewSensorHandler(sensorService *services.SensorService, statsService *services.StatisticsService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SensorHandler {
	return &SensorHandler{
		sensorService: sensorService,
		statsService:  statsService,
		logger:        logger,
		metrics:       metricsCollector,
	}
}

// GetRecent handles GET /api/sensors/recent
func (h *SensorHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		sendError(w, r, h.metrics, "invalid limit, expected integer", http.StatusBadRequest)
		return
	}

	readings, err := h.sensorService.Recent(r.Context(), limit)
	if err != nil {
		sendServiceError(w, r, h.logger, h.metrics, "[API_GET_SENSORS_ERROR] Failed to get sensor readings", err)
		return
	}

	sendJSON(w, ListResponse{Data: readings, Count: len(readings)}, http.StatusOK)
}

// CreateReading handles POST /api/sensors
func (h *SensorHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	var reading models.SensorReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		sendError(w, r, h.metrics, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := h.sensorService.Record(r.Context(), &reading); err != nil {
		sendServiceError(w, r, h.logger, h.metrics, "[API_CREATE_SENSOR_ERROR] Failed to store sensor reading", err)
		return
	}

	sendJSON(w, reading, http.StatusCreated)
}

// GetStatistics handles GET /api/sensors/stats
func (h *SensorHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.SensorStats(r.Context())
	if err != nil {
		sendServiceError(w, r, h.logger, h.metrics, "[API_GET_SENSOR_STATS_ERROR] Failed to get sensor statistics", err)
		return
	}

	sendJSON(w, stats, http.StatusOK)
}

// RegisterRoutes registers all sensor API routes
func (h *SensorHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/sensors/recent", h.GetRecent).Methods("GET")
	router.HandleFunc("/api/sensors/stats", h.GetStatistics).Methods("GET")
	router.HandleFunc("/api/sensors", h.CreateReading).Methods("POST")
}
