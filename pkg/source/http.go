package source

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Sternrassler/people-pager/pkg/pagination"
	"github.com/Sternrassler/people-pager/pkg/ratelimit"
)

// Prometheus metrics for HTTP page sources.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_source_requests_total",
		Help: "Total page source requests by source and status",
	}, []string{"source", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_source_request_duration_seconds",
		Help:    "Page source request duration in seconds by source",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_source_errors_total",
		Help: "Total page source errors by source and class",
	}, []string{"source", "class"})
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and locally blocked requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that could not be parsed.
	ErrorClassDecode ErrorClass = "decode"
)

// HTTPError describes a failed request to the people API.
type HTTPError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("people API %s error (status %d): %s: %v", e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("people API %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// HTTPConfig holds the HTTP source configuration.
type HTTPConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string

	// Path is the collection path (default "/people").
	Path string

	// UserAgent is sent with every request (required).
	UserAgent string

	// Timeout bounds a single request.
	Timeout time.Duration

	// Name labels metrics and keys the shared rate limit state (default "people").
	Name string

	// Redis enables the shared rate limit gate when set.
	Redis redis.Cmdable

	// BreakerThreshold opens a circuit breaker after that many consecutive
	// server, network or rate limit failures. 0 disables the breaker.
	BreakerThreshold uint32

	// BreakerTimeout is how long an open breaker refuses requests before
	// letting one through.
	BreakerTimeout time.Duration
}

// DefaultHTTPConfig returns a default configuration for baseURL.
func DefaultHTTPConfig(baseURL, userAgent string) HTTPConfig {
	return HTTPConfig{
		BaseURL:   baseURL,
		Path:      "/people",
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Name:      "people",
	}
}

// HTTP fetches pages from a JSON people API.
type HTTP struct {
	httpClient  *http.Client
	endpoint    *url.URL
	config      HTTPConfig
	rateLimiter *ratelimit.Tracker
	breaker     *gobreaker.CircuitBreaker
	logger      zerolog.Logger
}

// NewHTTP creates an HTTP source.
func NewHTTP(cfg HTTPConfig, logger zerolog.Logger) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/people"
	}
	if cfg.Name == "" {
		cfg.Name = "people"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultBreakerTimeout
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	logger = logger.With().Str("component", "http-source").Str("source", cfg.Name).Logger()

	h := &HTTP{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   endpoint,
		config:     cfg,
		logger:     logger,
	}
	if cfg.Redis != nil {
		h.rateLimiter = ratelimit.NewTracker(cfg.Redis, cfg.Name, logger)
	}
	if cfg.BreakerThreshold > 0 {
		h.breaker = newBreaker(cfg, logger)
	}
	return h, nil
}

// FetchPage implements pagination.PageFetcher.
func (h *HTTP) FetchPage(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(h.config.Name).Observe(time.Since(startTime).Seconds())
	}()

	if h.rateLimiter != nil {
		if err := h.rateLimiter.Wait(ctx); err != nil {
			requestsTotal.WithLabelValues(h.config.Name, "rate_limited").Inc()
			errorsTotal.WithLabelValues(h.config.Name, string(ErrorClassRateLimit)).Inc()
			return pagination.Page{}, &HTTPError{Class: ErrorClassRateLimit, Message: "request blocked", Err: err}
		}
	}

	if h.breaker == nil {
		return h.get(ctx, cursor)
	}

	result, err := h.breaker.Execute(func() (interface{}, error) {
		return h.get(ctx, cursor)
	})
	if err != nil {
		if breakerRefused(err) {
			requestsTotal.WithLabelValues(h.config.Name, "circuit_open").Inc()
			errorsTotal.WithLabelValues(h.config.Name, string(ErrorClassCircuitOpen)).Inc()
			return pagination.Page{}, &HTTPError{Class: ErrorClassCircuitOpen, Message: "circuit breaker open", Err: err}
		}
		return pagination.Page{}, err
	}
	return result.(pagination.Page), nil
}

// get performs one GET for the page after cursor.
func (h *HTTP) get(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.pageURL(cursor), nil)
	if err != nil {
		return pagination.Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	h.logger.Debug().
		Str("cursor", string(cursor)).
		Str("url", req.URL.String()).
		Msg("Requesting page")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(h.config.Name, "network_error").Inc()
		errorsTotal.WithLabelValues(h.config.Name, string(ErrorClassNetwork)).Inc()
		return pagination.Page{}, &HTTPError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(h.config.Name, strconv.Itoa(resp.StatusCode)).Inc()

	if h.rateLimiter != nil {
		if err := h.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(h.config.Name, string(class)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		h.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("People API request error")

		return pagination.Page{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    errorMessage(resp.Status, body),
		}
	}

	var payload PeopleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		errorsTotal.WithLabelValues(h.config.Name, string(ErrorClassDecode)).Inc()
		return pagination.Page{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "decode response body",
			Err:        err,
		}
	}

	return pagination.Page{
		Records:    payload.People,
		NextCursor: pagination.Cursor(payload.Next),
	}, nil
}

func (h *HTTP) pageURL(cursor pagination.Cursor) string {
	u := *h.endpoint
	q := u.Query()
	if cursor != pagination.NoCursor {
		q.Set("next", string(cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// classifyStatus maps an HTTP error status to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

// errorMessage prefers the API's {"error": "..."} message over the status line.
func errorMessage(status string, body []byte) string {
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return status
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (h *HTTP) SetHTTPClient(client *http.Client) {
	h.httpClient = client
}

// IsRateLimited reports whether err came from a rate limited or blocked request.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Class == ErrorClassRateLimit
}
