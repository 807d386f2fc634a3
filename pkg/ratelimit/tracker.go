package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrBlocked is returned by Wait when the budget is exhausted.
var ErrBlocked = errors.New("rate limit critical, request blocked")

// Prometheus metrics for rate limit tracking.
var (
	remainingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pager_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window by source",
	}, []string{"source"})

	blocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_rate_limit_blocks_total",
		Help: "Total fetches blocked because the rate limit budget was critical",
	}, []string{"source"})

	throttlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_rate_limit_throttles_total",
		Help: "Total fetches delayed because the rate limit budget was low",
	}, []string{"source"})
)

// Redis hash fields.
const (
	fieldRemaining  = "remaining"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// DefaultThrottleDelay is how long a throttled fetch waits.
const DefaultThrottleDelay = 1 * time.Second

// Tracker records a source's request budget and gates fetches against it.
type Tracker struct {
	redis         redis.Cmdable
	source        string
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a tracker for the named source.
func NewTracker(redisClient redis.Cmdable, source string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		source:        source,
		logger:        logger.With().Str("component", "ratelimit").Str("source", source).Logger(),
		throttleDelay: DefaultThrottleDelay,
	}
}

// Key returns the Redis key holding the state.
func (t *Tracker) Key() string {
	return "pager:rate_limit:" + t.source
}

// SetThrottleDelay changes how long throttled fetches wait.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState returns the stored state, or a healthy default if the source has
// not reported a budget yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, t.Key()).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state stored, assuming healthy")
		return defaultState(time.Now()), nil
	}

	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return nil, fmt.Errorf("parse stored remaining: %w", err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse stored reset: %w", err)
	}
	lastUpdate, err := time.Parse(time.RFC3339Nano, fields[fieldLastUpdate])
	if err != nil {
		return nil, fmt.Errorf("parse stored last update: %w", err)
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: lastUpdate,
	}
	state.updateHealth()
	return state, nil
}

// parseHeaders builds a state from response headers. It returns nil without
// error when the response carries no budget.
func parseHeaders(headers http.Header, now time.Time) (*State, error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, fmt.Errorf("%s header missing", HeaderReset)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state := &State{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.updateHealth()
	return state, nil
}

// UpdateFromHeaders stores the budget advertised by a response.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, err := parseHeaders(headers, time.Now())
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.Key(),
		fieldRemaining, state.Remaining,
		fieldResetAt, state.ResetAt.Unix(),
		fieldLastUpdate, state.LastUpdate.Format(time.RFC3339Nano),
	)
	// keep the state a little past the window so a late reader still sees it
	pipe.ExpireAt(ctx, t.Key(), state.ResetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	remainingGauge.WithLabelValues(t.source).Set(float64(state.Remaining))

	switch {
	case state.Blocked():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit CRITICAL - fetches will be blocked")
	case state.Throttled():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit WARNING - fetches will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Bool("healthy", state.Healthy).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a fetch may go ahead. A low budget
// delays the call by the throttle delay; a critical one returns false.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.Blocked() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit critical - blocking fetch")
		blocksTotal.WithLabelValues(t.source).Inc()
		return false, nil
	}

	if state.Throttled() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Rate limit warning - throttling fetch")
		throttlesTotal.WithLabelValues(t.source).Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Wait is ShouldAllowRequest as an error: nil when the fetch may proceed,
// ErrBlocked when it must not.
func (t *Tracker) Wait(ctx context.Context) error {
	allowed, err := t.ShouldAllowRequest(ctx)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		return ErrBlocked
	}
	return nil
}
