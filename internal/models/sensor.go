package models

import "time"

// SensorTimestampLayout is how plant sensor timestamps are stored
const SensorTimestampLayout = "2006-01-02 15:04:05"

// SensorReading is one sample from the plant monitor. It lives in its own table
// next to weather_data and is never mixed with weather observations.
type SensorReading struct {
	ID          int64  `json:"id" db:"id"`
	Timestamp   string `json:"timestamp" db:"timestamp"`
	Moisture    int    `json:"moisture" db:"moisture"`
	Light       int    `json:"light" db:"light"`
	Temperature int    `json:"temperature" db:"temperature"`
	TimeOfDay   int    `json:"time_of_day" db:"time_of_day"`
}

// Validate checks the reading ranges used by the plant model
func (r *SensorReading) Validate() error {
	if _, err := time.Parse(SensorTimestampLayout, r.Timestamp); err != nil {
		return &ValidationError{Field: "timestamp", Value: r.Timestamp, Message: "invalid timestamp, expected YYYY-MM-DD HH:MM:SS"}
	}
	if r.Moisture < 0 || r.Moisture > 100 {
		return &ValidationError{Field: "moisture", Message: "moisture must be between 0 and 100"}
	}
	if r.Light < 0 || r.Light > 100 {
		return &ValidationError{Field: "light", Message: "light must be between 0 and 100"}
	}
	if r.TimeOfDay < 0 || r.TimeOfDay > 23 {
		return &ValidationError{Field: "time_of_day", Message: "time_of_day must be an hour between 0 and 23"}
	}
	return nil
}

// SensorAverages holds the rounded averages of the plant readings
type SensorAverages struct {
	Moisture    float64 `json:"moisture"`
	Light       float64 `json:"light"`
	Temperature float64 `json:"temperature"`
}

// SensorStats is the aggregate view over sensor_readings
type SensorStats struct {
	TotalRecords int            `json:"total_records"`
	FirstRecord  *string        `json:"first_record"`
	LastRecord   *string        `json:"last_record"`
	Averages     SensorAverages `json:"averages"`
}
