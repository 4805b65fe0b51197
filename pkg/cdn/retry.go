package cdn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	cdnRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drinks_cdn_retries_total",
		Help: "CDN API retries by error class",
	}, []string{"error_class"})

	cdnRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drinks_cdn_retry_backoff_seconds",
		Help:    "Wait before a CDN API retry by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	cdnRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drinks_cdn_retry_exhausted_total",
		Help: "CDN API calls that failed after their last retry, by error class",
	}, []string{"error_class"})
)

// RetryConfig is the retry policy for one error class.
type RetryConfig struct {
	MaxAttempts       int // including the first request
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// delay is the un-jittered wait before attempt n (n >= 2).
func (rc RetryConfig) delay(n int) time.Duration {
	d := float64(rc.InitialBackoff) * math.Pow(rc.BackoffMultiplier, float64(n-2))
	if d > float64(rc.MaxBackoff) {
		return rc.MaxBackoff
	}
	return time.Duration(d)
}

// DefaultRetryConfig is used for classes without their own policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2,
	}
}

var retryPolicies = map[ErrorClass]RetryConfig{
	ErrorClassServer:    {MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, BackoffMultiplier: 2},
	ErrorClassRateLimit: {MaxAttempts: 3, InitialBackoff: 5 * time.Second, MaxBackoff: 60 * time.Second, BackoffMultiplier: 2},
	ErrorClassNetwork:   {MaxAttempts: 3, InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second, BackoffMultiplier: 2},
}

// RetryConfigForErrorClass returns the policy for errorClass.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	if rc, ok := retryPolicies[errorClass]; ok {
		return rc
	}
	return DefaultRetryConfig()
}

// retryWithBackoff calls fn until it succeeds or returns an error that is not
// retriable. The policy is chosen by the class of the first failure. Waits are
// jittered by ±20%, stretched to a server-sent Retry-After, and end early
// when ctx is done.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, configFor func(ErrorClass) RetryConfig, fn func() error) error {
	var (
		errorClass ErrorClass
		config     RetryConfig
	)

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("CDN request succeeded after retry")
			}
			return nil
		}
		if !shouldRetry(classOf(err)) {
			return err
		}
		if attempt == 1 {
			errorClass = classOf(err)
			config = configFor(errorClass)
		}
		if attempt >= config.MaxAttempts {
			cdnRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("CDN retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, err)
		}

		wait := time.Duration(float64(config.delay(attempt+1)) * (0.8 + rand.Float64()*0.4))
		if ra := retryAfterOf(err); ra > wait {
			wait = min(ra, config.MaxBackoff)
		}
		cdnRetriesTotal.WithLabelValues(string(errorClass)).Inc()
		cdnRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())
		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying CDN request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().Str("error_class", string(errorClass)).Msg("Context cancelled during CDN retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}
