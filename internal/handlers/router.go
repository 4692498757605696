package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"meteo-collector/pkg/logging"
	"meteo-collector/pkg/metrics"
)

// NewRouter wires the API, docs and metrics endpoints behind the request middleware
func NewRouter(weather *WeatherHandler, sensors *SensorHandler, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestMiddleware(logger, metricsCollector))

	weather.RegisterRoutes(router)
	sensors.RegisterRoutes(router)

	router.HandleFunc("/api/docs", SwaggerUI("/api/docs/openapi.json")).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.Handle("/metrics", metricsCollector.Handler()).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, metricsCollector, "route not found", http.StatusNotFound)
	})

	return router
}
