// Package ratelimit tracks the backend's request budget and gates requests.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset response headers
// and shares the resulting state through Redis, so every client process
// talking to the same backend backs off together.
package ratelimit

import (
	"time"
)

// Response headers carrying the backend budget.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "contesthub:rate_limit:remaining"
	RedisKeyResetTimestamp = "contesthub:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "contesthub:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks requests when the remaining budget falls below it.
	ThresholdCritical = 2

	// ThresholdWarning throttles requests when the remaining budget falls below it.
	ThresholdWarning = 10

	// ThresholdHealthy marks the state healthy at or above it.
	ThresholdHealthy = 30
)

// ThrottleDelay is how long a request is held back in the warning band.
const ThrottleDelay = 1 * time.Second

// RateLimitState is the last known backend budget.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true if requests should be refused until the reset.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true in the warning band.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the time left in the window, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
