package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Layouts of the natural key columns
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Observation is one hourly weather reading for the configured location.
// Date and Time are wall-clock values in the collector's fixed timezone and form the unique key.
// Nil measurement pointers mean the upstream omitted the value.
type Observation struct {
	ID            int64     `json:"id" db:"id"`
	Date          string    `json:"date" db:"date"`
	Time          string    `json:"time" db:"time"`
	Temperature   *float64  `json:"temperature" db:"temperature"`
	Humidity      *float64  `json:"humidity" db:"humidity"`
	Pressure      *float64  `json:"pressure" db:"pressure"`
	WindSpeed     *float64  `json:"wind_speed" db:"wind_speed"`
	WindDirection *float64  `json:"wind_direction" db:"wind_direction"`
	Precipitation *float64  `json:"precipitation" db:"precipitation"`
	Visibility    *float64  `json:"visibility" db:"visibility"`
	RecordedAt    Timestamp `json:"recorded_at" db:"created_at"`
}

// NewObservation builds an observation keyed by the wall-clock of t in loc
func NewObservation(t time.Time, loc *time.Location) *Observation {
	local := t.In(loc)
	return &Observation{
		Date: local.Format(DateLayout),
		Time: local.Format(TimeLayout),
	}
}

// Timestamp combines Date and Time into a single instant in loc
func (o *Observation) Timestamp(loc *time.Location) (time.Time, error) {
	return ParseDateTime(o.Date, o.Time, loc)
}

// ParseDateTime combines stored date and time strings into one instant
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "date_time",
			Value:   date + " " + clock,
			Message: "invalid date/time, expected YYYY-MM-DD HH:MM:SS",
		}
	}
	return t, nil
}

// CollectionWindow is the closed interval [Start, End] requested from the weather API
type CollectionWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the window
func (w CollectionWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t lies inside the window, bounds included
func (w CollectionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// CollectionResult summarises one reconciliation pass
type CollectionResult struct {
	RunID      string            `json:"run_id"`
	Trigger    string            `json:"trigger"`
	Window     *CollectionWindow `json:"window,omitempty"`
	Fetched    int               `json:"fetched"`
	Inserted   int               `json:"inserted"`
	Duplicates int               `json:"duplicates"`
	Skipped    bool              `json:"skipped"`
	Reason     string            `json:"reason,omitempty"`
}

// WeatherAverages holds per-field averages, rounded to one decimal
type WeatherAverages struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	WindSpeed     float64 `json:"wind_speed"`
	Precipitation float64 `json:"precipitation"`
	Visibility    float64 `json:"visibility"`
}

// WeatherStats is the aggregate view consumed by reporting screens
type WeatherStats struct {
	TotalRecords int             `json:"total_records"`
	FirstRecord  *time.Time      `json:"first_record"`
	LastRecord   *time.Time      `json:"last_record"`
	Averages     WeatherAverages `json:"averages"`
}

// Timestamp is a nullable time column that tolerates engines returning text
type Timestamp struct {
	Time  time.Time
	Valid bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Scan implements sql.Scanner
func (t *Timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = Timestamp{}
		return nil
	case time.Time:
		*t = Timestamp{Time: v, Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = Timestamp{Time: parsed, Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// Value implements driver.Valuer
func (t Timestamp) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}

// MarshalJSON renders null for unset timestamps
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return t.Time.MarshalJSON()
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// UnmarshalJSON accepts null or an RFC 3339 string
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var parsed time.Time
	if err := parsed.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp{Time: parsed, Valid: true}
	return nil
}
