package cdn

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRetryExhausted wraps the last failure once a policy runs out of attempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when ctx ends while waiting to retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned without calling Fastly when the tracked
	// API budget is critical.
	ErrRateLimited = errors.New("cdn api rate limit critical")
)

// ErrorClass groups purge failures by how they should be retried.
type ErrorClass string

const (
	ErrorClassClient    ErrorClass = "client"     // 4xx other than 429: bad token, unknown service
	ErrorClassServer    ErrorClass = "server"     // 5xx
	ErrorClassRateLimit ErrorClass = "rate_limit" // 429
	ErrorClassNetwork   ErrorClass = "network"    // transport errors and timeouts
)

// PurgeError is a failed Fastly API call.
type PurgeError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// RetryAfter is the wait requested by Fastly on a 429, if any.
	RetryAfter time.Duration

	Err error
}

func (e *PurgeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cdn %s error", e.ErrorClass)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *PurgeError) Unwrap() error {
	return e.Err
}

func classify(statusCode int, err error) ErrorClass {
	switch {
	case err != nil:
		return ErrorClassNetwork
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	case statusCode >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

func classOf(err error) ErrorClass {
	if pe := (*PurgeError)(nil); errors.As(err, &pe) {
		return pe.ErrorClass
	}
	return ""
}

func retryAfterOf(err error) time.Duration {
	if pe := (*PurgeError)(nil); errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// shouldRetry reports whether a failure of errorClass may succeed later.
// Client errors never do.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
