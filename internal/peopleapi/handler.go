// Package peopleapi serves any pagination.PageFetcher as the JSON people API
// that source.HTTP consumes.
package peopleapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-pager/pkg/pagination"
	"github.com/Sternrassler/people-pager/pkg/ratelimit"
	"github.com/Sternrassler/people-pager/pkg/source"
)

// Config holds handler configuration.
type Config struct {
	// Budget is the number of requests allowed per Window. 0 disables the
	// budget and its headers.
	Budget int

	// Window is the length of a budget window.
	Window time.Duration
}

// DefaultConfig returns a handler configuration with no request budget.
func DefaultConfig() Config {
	return Config{Window: time.Minute}
}

// Handler serves GET /people?next=<cursor>.
type Handler struct {
	fetcher pagination.PageFetcher
	config  Config
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

// NewHandler creates a handler serving pages from fetcher.
func NewHandler(fetcher pagination.PageFetcher, config Config, logger zerolog.Logger) *Handler {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Handler{
		fetcher: fetcher,
		config:  config,
		logger:  logger.With().Str("component", "peopleapi").Logger(),
		now:     time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.spend(w) {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("Request budget exhausted")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	cursor := pagination.Cursor(r.URL.Query().Get("next"))
	page, err := h.fetcher.FetchPage(r.Context(), cursor)
	if err != nil {
		if errors.Is(err, source.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn().Err(err).Str("cursor", string(cursor)).Msg("Page fetch failed")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := source.PeopleResponse{
		People: page.Records,
		Next:   string(page.NextCursor),
	}
	if resp.People == nil {
		resp.People = []pagination.Record{}
	}

	h.logger.Debug().
		Str("cursor", string(cursor)).
		Int("records", len(resp.People)).
		Str("next", resp.Next).
		Msg("Served page")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// spend takes one request from the budget and sets the rate limit headers.
// It returns false when the window is used up.
func (h *Handler) spend(w http.ResponseWriter) bool {
	if h.config.Budget <= 0 {
		return true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if !now.Before(h.resetAt) {
		h.remaining = h.config.Budget
		h.resetAt = now.Add(h.config.Window)
	}

	allowed := h.remaining > 0
	if allowed {
		h.remaining--
	}

	resetIn := int(h.resetAt.Sub(now).Round(time.Second) / time.Second)
	w.Header().Set(ratelimit.HeaderRemaining, strconv.Itoa(h.remaining))
	w.Header().Set(ratelimit.HeaderReset, strconv.Itoa(resetIn))
	return allowed
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Health responds 200 with {"status":"ok"}.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// NewRouter returns a router with the people API at /people and a health
// check at /health.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Method(http.MethodGet, "/people", h)
	r.Get("/health", Health)

	return r
}
