package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the collector
type Config struct {
	Database   DatabaseConfig
	Weather    WeatherConfig
	Collection CollectionConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

// DatabaseConfig selects and tunes the storage engine
type DatabaseConfig struct {
	Driver          string        `validate:"oneof=sqlite postgres"`
	Path            string        `validate:"required_if=Driver sqlite"`
	DSN             string        `validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
	ConnMaxIdleTime time.Duration `validate:"gte=0"`
	MonitorInterval time.Duration `validate:"gte=0"`
}

// WeatherConfig describes the single collected location and the upstream API
type WeatherConfig struct {
	Latitude      float64       `validate:"gte=-90,lte=90"`
	Longitude     float64       `validate:"gte=-180,lte=180"`
	Timezone      string        `validate:"required"`
	BaseURL       string        `validate:"required,url"`
	HTTPTimeout   time.Duration `validate:"gt=0"`
	RatePerSecond float64       `validate:"gte=0"`
}

// CollectionConfig holds the scheduling and gap thresholds
type CollectionConfig struct {
	Interval           time.Duration `validate:"gte=1m"`
	InitialBackfill    time.Duration `validate:"gt=0,lte=2208h"`
	RecentRefreshHours int           `validate:"gte=0,lte=2208"`
	StaleAfter         time.Duration `validate:"gt=0"`
	RunTimeout         time.Duration `validate:"gt=0"`
}

// ServerConfig configures the HTTP read API
type ServerConfig struct {
	Host            string        `validate:"required"`
	Port            int           `validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// LoadConfig loads .env if present, then reads the environment with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	driver := getEnv("DB_DRIVER", "sqlite")
	maxOpen := getEnvAsInt("DB_MAX_OPEN_CONNS", 1)
	maxIdle := getEnvAsInt("DB_MAX_IDLE_CONNS", 1)
	if driver == "postgres" {
		maxOpen = getEnvAsInt("DB_MAX_OPEN_CONNS", 10)
		maxIdle = getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          driver,
			Path:            getEnv("DATABASE_PATH", "data/plant_data.db"),
			DSN:             getEnv("DB_DSN", ""),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 0),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 0),
			MonitorInterval: getEnvAsDuration("DB_MONITOR_INTERVAL", 30*time.Second),
		},
		Weather: WeatherConfig{
			Latitude:      getEnvAsFloat("WEATHER_LATITUDE", 53.1235),
			Longitude:     getEnvAsFloat("WEATHER_LONGITUDE", 18.0084),
			Timezone:      getEnv("WEATHER_TIMEZONE", "Europe/Warsaw"),
			BaseURL:       getEnv("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
			HTTPTimeout:   getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
			RatePerSecond: getEnvAsFloat("FETCH_RATE_PER_SECOND", 1),
		},
		Collection: CollectionConfig{
			Interval:           time.Duration(getEnvAsInt("COLLECTION_INTERVAL_HOURS", 1)) * time.Hour,
			InitialBackfill:    time.Duration(getEnvAsInt("INITIAL_BACKFILL_HOURS", 168)) * time.Hour,
			RecentRefreshHours: getEnvAsInt("RECENT_REFRESH_HOURS", 1),
			StaleAfter:         getEnvAsDuration("STALE_AFTER", 2*time.Hour),
			RunTimeout:         getEnvAsDuration("COLLECTION_RUN_TIMEOUT", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate checks struct constraints and that the timezone is loadable
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Weather.LoadLocation(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadLocation resolves the configured timezone
func (w WeatherConfig) LoadLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", w.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
