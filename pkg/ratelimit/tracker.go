package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Header names used by the Fastly API.
const (
	HeaderRemaining = "Fastly-RateLimit-Remaining"
	HeaderReset     = "Fastly-RateLimit-Reset"
)

var (
	cdnRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drinks_cdn_rate_limit_remaining",
		Help: "Remaining Fastly API calls in the current rate limit window",
	})

	cdnRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drinks_cdn_rate_limit_blocks_total",
		Help: "Total number of CDN API calls blocked due to critical rate limit",
	})

	cdnRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drinks_cdn_rate_limit_throttles_total",
		Help: "Total number of CDN API calls throttled due to warning rate limit",
	})
)

// Tracker monitors the CDN API rate limit and gates requests.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration
	sleep    func(context.Context, time.Duration) error
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: time.Second,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetState retrieves the current rate limit state from Redis.
// Returns a default healthy state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	values, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyResetTimestamp, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if values[0] == nil {
		t.logger.Debug().Msg("No CDN rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}

	remaining, err := parseIntValue(values[0])
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	reset, err := parseIntValue(values[1])
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}
	lastUpdate, err := parseIntValue(values[2])
	if err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &State{
		Remaining:  int(remaining),
		ResetAt:    time.Unix(reset, 0),
		LastUpdate: time.Unix(0, lastUpdate),
	}
	if state.IsStale(MaxStateAge) {
		t.logger.Debug().
			Time("last_update", state.LastUpdate).
			Msg("CDN rate limit state is stale, returning default healthy state")
		return defaultState(), nil
	}
	state.UpdateHealth()
	return state, nil
}

func defaultState() *State {
	now := time.Now()
	return &State{
		Remaining:  1000,
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}

func parseIntValue(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// ParseHeaders extracts rate limit state from Fastly API response headers.
// ok is false when the response carries no rate limit headers.
func ParseHeaders(headers http.Header) (state *State, ok bool, err error) {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := strings.TrimSpace(headers.Get(HeaderReset))
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state = &State{
		Remaining:  remain,
		ResetAt:    time.Unix(reset, 0),
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()
	return state, true, nil
}

// UpdateFromHeaders parses Fastly rate limit headers and updates Redis state.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers)
	if err != nil || !ok {
		return err
	}

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.UnixNano(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	cdnRateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("CDN rate limit CRITICAL - purges will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("CDN rate limit WARNING - purges will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Bool("is_healthy", state.IsHealthy).
			Msg("CDN rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a CDN API call may proceed. It returns
// false when the budget is critical and sleeps briefly when it is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("CDN rate limit critical - blocking request")
		cdnRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("CDN rate limit warning - throttling request")
		cdnRateLimitThrottlesTotal.Inc()
		if err := t.sleep(ctx, t.throttle); err != nil {
			return false, err
		}
	}

	return true, nil
}
