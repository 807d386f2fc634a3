// Package ratelimit tracks the request budget a remote page source advertises
// and gates fetches before the budget runs out.
//
// Sources report their budget with the X-RateLimit-Remaining and
// X-RateLimit-Reset headers. The state is kept in Redis so that every process
// paging the same source shares it.
package ratelimit

import (
	"time"
)

// Response headers read by the tracker.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for gating decisions.
const (
	// ThresholdCritical blocks fetches when fewer requests than this remain.
	ThresholdCritical = 5

	// ThresholdWarning throttles fetches when fewer requests than this remain.
	ThresholdWarning = 20

	// ThresholdHealthy marks the budget healthy at or above this value.
	ThresholdHealthy = 50
)

// State is the request budget of one source.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was last refreshed from response headers.
	LastUpdate time.Time `json:"last_update"`

	// Healthy is true when Remaining >= ThresholdHealthy.
	Healthy bool `json:"healthy"`
}

// defaultState is assumed until a source has reported its budget.
func defaultState(now time.Time) *State {
	return &State{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		Healthy:    true,
	}
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Blocked returns true if fetches must stop until the window resets.
// A window that has already reset is never blocked.
func (s *State) Blocked() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// Throttled returns true if fetches should be slowed down.
func (s *State) Throttled() bool {
	return s.Remaining < ThresholdWarning && s.Remaining >= ThresholdCritical
}

// TimeUntilReset returns the time left in the window, or 0 once it has passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

func (s *State) updateHealth() {
	s.Healthy = s.Remaining >= ThresholdHealthy
}
