package source

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrorClassCircuitOpen marks a request refused by an open circuit breaker.
const ErrorClassCircuitOpen ErrorClass = "circuit_open"

// DefaultBreakerTimeout is how long an opened breaker refuses requests.
const DefaultBreakerTimeout = 30 * time.Second

func newBreaker(cfg HTTPConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.BreakerThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: breakerSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// breakerSuccessful counts only outages against the breaker. A 4xx other
// than 429 means the API is up and answering.
func breakerSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Class == ErrorClassClient
	}
	return false
}

func breakerRefused(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
