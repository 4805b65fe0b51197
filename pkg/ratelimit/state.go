// Package ratelimit tracks the Fastly API rate limit budget and gates purge
// requests. It reads the Fastly-RateLimit-Remaining and Fastly-RateLimit-Reset
// response headers and shares the state between server instances via Redis.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "drinks:cdn_rate_limit:remaining"
	RedisKeyResetTimestamp = "drinks:cdn_rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "drinks:cdn_rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks all requests when remaining budget falls below this value.
	ThresholdCritical = 5

	// ThresholdWarning applies throttling when remaining budget falls below this value.
	ThresholdWarning = 20

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 50
)

// MaxStateAge is how long stored state is trusted. Fastly budgets are
// hourly, so older state describes a window that has already ended.
const MaxStateAge = time.Hour

// State represents the current CDN API rate limit state.
type State struct {
	// Remaining is the number of API calls left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (Fastly-RateLimit-Reset, Unix seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
// A window that has already reset never blocks.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be throttled.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && s.TimeUntilReset() > 0 && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
