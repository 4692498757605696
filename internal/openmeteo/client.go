package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public forecast endpoint, which also serves recent history via past_days
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// MaxPastDays is how far back the forecast endpoint keeps hourly history
const MaxPastDays = 92

var (
	// ErrNoHourlyData is returned when the payload has no hourly block
	ErrNoHourlyData = errors.New("no hourly data in response")
	// ErrCircuitOpen is returned while the breaker rejects calls
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

// DecodeError is returned when the payload cannot be parsed
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// callerCanceledError marks a request aborted by the caller's own context.
// The breaker does not count it against the upstream.
type callerCanceledError struct {
	err error
}

func (e *callerCanceledError) Error() string { return e.err.Error() }

func (e *callerCanceledError) Unwrap() error { return e.err }

// Config holds client settings
type Config struct {
	BaseURL       string
	Latitude      float64
	Longitude     float64
	Location      *time.Location
	Timeout       time.Duration
	RatePerSecond float64
}

// Client calls the Open-Meteo forecast endpoint for one fixed location
type Client struct {
	httpClient *http.Client
	config     Config
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

// NewClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openmeteo",
			MaxRequests: 1,
			Interval:    10 * time.Minute,
			Timeout:     5 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				var canceled *callerCanceledError
				return err == nil || errors.As(err, &canceled)
			},
		}),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Location returns the timezone the hourly times are interpreted in
func (c *Client) Location() *time.Location {
	return c.config.Location
}

// Hourly fetches pastDays days of hourly history plus today's forecast.
// pastDays is clamped to [0, MaxPastDays].
func (c *Client) Hourly(ctx context.Context, pastDays int) ([]HourlyRow, error) {
	if pastDays < 0 {
		pastDays = 0
	}
	if pastDays > MaxPastDays {
		pastDays = MaxPastDays
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(pastDays), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &callerCanceledError{err: err}
			}
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return resp, nil
	})
	if err != nil {
		var canceled *callerCanceledError
		if errors.As(err, &canceled) {
			return nil, canceled.err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	defer resp.Body.Close()

	var payload Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if payload.Hourly == nil {
		return nil, ErrNoHourlyData
	}

	rows := payload.Hourly.Rows
	for i := range rows {
		t, err := time.ParseInLocation(HourlyTimeLayout, rows[i].LocalTime, c.config.Location)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("hourly time %q: %w", rows[i].LocalTime, err)}
		}
		rows[i].Time = t
	}

	return rows, nil
}

func (c *Client) requestURL(pastDays int) string {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(c.config.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(c.config.Longitude, 'f', -1, 64))
	values.Set("hourly", strings.Join(HourlyFields, ","))
	values.Set("past_days", strconv.Itoa(pastDays))
	values.Set("forecast_days", "1")
	values.Set("timezone", c.config.Location.String())

	return fmt.Sprintf("%s?%s", c.config.BaseURL, values.Encode())
}

// ErrorType classifies a client error for metrics labels
func ErrorType(err error) string {
	var statusErr *StatusError
	var decodeErr *DecodeError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoHourlyData):
		return "no_data"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &statusErr):
		return "status"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
