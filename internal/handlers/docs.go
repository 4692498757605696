package handlers

import (
	"encoding/json"
	"net/http"
)

func queryParam(name, description, typ string, required bool) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      map[string]string{"type": typ},
	}
}

func jsonResponse(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/" + schemaRef},
			},
		},
	}
}

var nullableNumber = map[string]interface{}{"type": "number", "nullable": true}

// OpenAPISpec returns the OpenAPI 3.0 specification for the collector API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	errorResponses := map[string]interface{}{
		"400": jsonResponse("Invalid request", "Error"),
		"500": jsonResponse("Internal server error", "Error"),
		"503": jsonResponse("Storage temporarily unavailable", "Error"),
	}
	withErrors := func(ok map[string]interface{}) map[string]interface{} {
		out := map[string]interface{}{"200": ok}
		for code, resp := range errorResponses {
			out[code] = resp
		}
		return out
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Meteo Collector API",
			"description": "Hourly weather observations collected from Open-Meteo for a single location, plus plant sensor readings",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/weather/latest": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get the latest observations, newest first",
					"parameters": []map[string]interface{}{
						queryParam("limit", "Number of records (default 10, max 1000)", "integer", false),
					},
					"responses": withErrors(jsonResponse("Observation list", "ObservationList")),
				},
			},
			"/api/weather": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get observations",
					"description": "Without parameters returns every stored observation. With start (and optional end) returns the inclusive range.",
					"parameters": []map[string]interface{}{
						queryParam("start", "Range start, RFC3339", "string", false),
						queryParam("end", "Range end, RFC3339 (default now)", "string", false),
					},
					"responses": withErrors(jsonResponse("Observation list", "ObservationList")),
				},
				"delete": map[string]interface{}{
					"summary": "Delete all observations",
					"parameters": []map[string]interface{}{
						queryParam("confirm", "Must be exactly YES", "string", true),
					},
					"responses": withErrors(map[string]interface{}{"description": "Number of deleted records"}),
				},
			},
			"/api/weather/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Get record count, covered range and averages",
					"responses": withErrors(jsonResponse("Statistics", "WeatherStats")),
				},
			},
			"/api/weather/collect": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Run a collection pass now",
					"description": "Without hours runs gap reconciliation; with hours collects the last N hours.",
					"parameters": []map[string]interface{}{
						queryParam("hours", "Hours to refresh (1-2208)", "integer", false),
					},
					"responses": withErrors(jsonResponse("Collection result", "CollectionResult")),
				},
			},
			"/api/sensors/recent": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get recent plant sensor readings",
					"parameters": []map[string]interface{}{
						queryParam("limit", "Number of records (default 100, max 1000)", "integer", false),
					},
					"responses": withErrors(map[string]interface{}{"description": "Sensor reading list"}),
				},
			},
			"/api/sensors/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Get plant sensor statistics",
					"responses": withErrors(map[string]interface{}{"description": "Sensor statistics"}),
				},
			},
			"/api/sensors": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":   "Store a plant sensor reading",
					"responses": map[string]interface{}{"201": map[string]interface{}{"description": "Stored reading"}, "400": jsonResponse("Invalid reading", "Error")},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check with latest observation age",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Service is healthy"},
						"503": map[string]interface{}{"description": "Database unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Prometheus metrics",
					"responses": map[string]interface{}{"200": map[string]interface{}{"description": "Prometheus text format"}},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Observation": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":             map[string]string{"type": "integer"},
						"date":           map[string]string{"type": "string", "format": "date"},
						"time":           map[string]string{"type": "string", "example": "14:00:00"},
						"temperature":    nullableNumber,
						"humidity":       nullableNumber,
						"pressure":       nullableNumber,
						"wind_speed":     nullableNumber,
						"wind_direction": nullableNumber,
						"precipitation":  nullableNumber,
						"visibility":     nullableNumber,
						"recorded_at":    map[string]string{"type": "string", "format": "date-time"},
					},
				},
				"ObservationList": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"data":  map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Observation"}},
						"count": map[string]string{"type": "integer"},
					},
				},
				"WeatherStats": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"total_records": map[string]string{"type": "integer"},
						"first_record":  map[string]interface{}{"type": "string", "format": "date-time", "nullable": true},
						"last_record":   map[string]interface{}{"type": "string", "format": "date-time", "nullable": true},
						"averages":      map[string]string{"type": "object"},
					},
				},
				"CollectionResult": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"run_id":     map[string]string{"type": "string"},
						"trigger":    map[string]string{"type": "string"},
						"fetched":    map[string]string{"type": "integer"},
						"inserted":   map[string]string{"type": "integer"},
						"duplicates": map[string]string{"type": "integer"},
						"skipped":    map[string]string{"type": "boolean"},
						"reason":     map[string]string{"type": "string"},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":      map[string]string{"type": "string"},
						"message":    map[string]string{"type": "string"},
						"code":       map[string]string{"type": "integer"},
						"request_id": map[string]string{"type": "string"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
