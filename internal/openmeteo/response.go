package openmeteo

import (
	"encoding/json"
	"time"
)

// HourlyTimeLayout is the local wall-clock format Open-Meteo uses when a timezone is requested
const HourlyTimeLayout = "2006-01-02T15:04"

// HourlyFields are the variables requested for every hour
var HourlyFields = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"precipitation",
	"visibility",
}

// HourlyRow is one hour of the forecast/history response. Missing values are nil.
type HourlyRow struct {
	Time          time.Time
	LocalTime     string
	Temperature   *float64
	Humidity      *float64
	Pressure      *float64
	WindSpeed     *float64
	WindDirection *float64
	Precipitation *float64
	Visibility    *float64
}

// Hourly holds the response rows decoded from Open-Meteo's parallel arrays
type Hourly struct {
	Rows []HourlyRow
}

type hourlyArrays struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m"`
	Humidity      []*float64 `json:"relative_humidity_2m"`
	Pressure      []*float64 `json:"surface_pressure"`
	WindSpeed     []*float64 `json:"wind_speed_10m"`
	WindDirection []*float64 `json:"wind_direction_10m"`
	Precipitation []*float64 `json:"precipitation"`
	Visibility    []*float64 `json:"visibility"`
}

// UnmarshalJSON zips the parallel arrays into rows keyed by the time index.
// Value arrays shorter than time leave the trailing fields nil.
func (h *Hourly) UnmarshalJSON(data []byte) error {
	var arrays hourlyArrays
	if err := json.Unmarshal(data, &arrays); err != nil {
		return err
	}

	rows := make([]HourlyRow, len(arrays.Time))
	for i, ts := range arrays.Time {
		rows[i] = HourlyRow{
			LocalTime:     ts,
			Temperature:   at(arrays.Temperature, i),
			Humidity:      at(arrays.Humidity, i),
			Pressure:      at(arrays.Pressure, i),
			WindSpeed:     at(arrays.WindSpeed, i),
			WindDirection: at(arrays.WindDirection, i),
			Precipitation: at(arrays.Precipitation, i),
			Visibility:    at(arrays.Visibility, i),
		}
	}
	h.Rows = rows
	return nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

// Response is the subset of the forecast endpoint payload the collector reads
type Response struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    *Hourly `json:"hourly"`
}
