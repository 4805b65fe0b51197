// Package cdn purges content from the Fastly CDN by surrogate key, with
// retries, rate limit gating and error classification.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/ratelimit"
)

// MaxKeysPerRequest is Fastly's limit for a batch surrogate-key purge.
const MaxKeysPerRequest = 256

// Prometheus metrics for CDN API operations.
var (
	cdnRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drinks_cdn_requests_total",
		Help: "Total CDN API requests by operation and status",
	}, []string{"operation", "status"})

	cdnRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drinks_cdn_request_duration_seconds",
		Help:    "CDN API request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"operation"})

	cdnErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drinks_cdn_errors_total",
		Help: "Total CDN API errors by class",
	}, []string{"class"})

	cdnPurgedKeysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drinks_cdn_purged_keys_total",
		Help: "Total surrogate keys purged at the CDN",
	})
)

// Purger invalidates CDN content.
type Purger interface {
	PurgeKeys(ctx context.Context, keys ...string) error
	PurgeAll(ctx context.Context) error
}

// Config holds the client configuration.
type Config struct {
	// APIURL is the Fastly API root, e.g. https://api.fastly.com
	APIURL string

	// ServiceID identifies the Fastly service to purge.
	ServiceID string

	// Token is sent as the Fastly-Key header.
	Token string

	// SoftPurge marks content stale instead of evicting it.
	SoftPurge bool

	// Tracker gates calls by the remaining API budget. Optional.
	Tracker *ratelimit.Tracker

	// Timeout per HTTP request.
	Timeout time.Duration
}

// Client is the Fastly purge client.
type Client struct {
	httpClient *http.Client
	config     Config
	retry      func(ErrorClass) RetryConfig
	logger     zerolog.Logger
}

// New creates a new purge client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if cfg.ServiceID == "" {
		return nil, fmt.Errorf("service id is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		retry:      RetryConfigForErrorClass,
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetRetryConfig overrides per-class retry configuration (for testing).
func (c *Client) SetRetryConfig(fn func(ErrorClass) RetryConfig) {
	c.retry = fn
}

type purgeRequest struct {
	SurrogateKeys []string `json:"surrogate_keys"`
}

// PurgeKeys purges the surrogate keys in batches of MaxKeysPerRequest.
// Every batch is attempted; failures are joined into the returned error.
func (c *Client) PurgeKeys(ctx context.Context, keys ...string) error {
	keys = dedupe(keys)
	if len(keys) == 0 {
		return nil
	}

	var errs []error
	for start := 0; start < len(keys); start += MaxKeysPerRequest {
		end := min(start+MaxKeysPerRequest, len(keys))
		batch := keys[start:end]

		body, err := json.Marshal(purgeRequest{SurrogateKeys: batch})
		if err != nil {
			return fmt.Errorf("marshal purge request: %w", err)
		}

		path := fmt.Sprintf("/service/%s/purge", c.config.ServiceID)
		if err := c.do(ctx, "purge_keys", path, body); err != nil {
			errs = append(errs, fmt.Errorf("purge %d keys: %w", len(batch), err))
			continue
		}

		cdnPurgedKeysTotal.Add(float64(len(batch)))
		c.logger.Info().
			Strs("surrogate_keys", batch).
			Bool("soft", c.config.SoftPurge).
			Msg("Purged surrogate keys")
	}

	return errors.Join(errs...)
}

// PurgeAll purges every object of the service.
func (c *Client) PurgeAll(ctx context.Context) error {
	path := fmt.Sprintf("/service/%s/purge_all", c.config.ServiceID)
	if err := c.do(ctx, "purge_all", path, nil); err != nil {
		return fmt.Errorf("purge all: %w", err)
	}
	c.logger.Info().Msg("Purged all CDN content")
	return nil
}

// do sends one POST with rate limiting and retries.
func (c *Client) do(ctx context.Context, operation, path string, body []byte) error {
	startTime := time.Now()
	defer func() {
		cdnRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	if c.config.Tracker != nil {
		allowed, err := c.config.Tracker.ShouldAllowRequest(ctx)
		if err != nil {
			// Rate limit state lives in Redis; losing it must not stop purges.
			c.logger.Warn().Err(err).Msg("CDN rate limit check failed")
		} else if !allowed {
			cdnRequestsTotal.WithLabelValues(operation, "rate_limited").Inc()
			return ErrRateLimited
		}
	}

	return retryWithBackoff(ctx, c.logger, c.retry, func() error {
		return c.attempt(ctx, operation, path, body)
	})
}

func (c *Client) attempt(ctx context.Context, operation, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Fastly-Key", c.config.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.SoftPurge {
		req.Header.Set("Fastly-Soft-Purge", "1")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classify(0, err)
		cdnErrorsTotal.WithLabelValues(string(class)).Inc()
		cdnRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		c.logger.Warn().Err(err).Str("operation", operation).Msg("CDN request failed")
		return &PurgeError{ErrorClass: class, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if c.config.Tracker != nil {
		if err := c.config.Tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update CDN rate limit from headers")
		}
	}

	cdnRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classify(resp.StatusCode, nil)
		cdnErrorsTotal.WithLabelValues(string(class)).Inc()

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn().
			Str("operation", operation).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("CDN request error")

		return &PurgeError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    strings.TrimSpace(resp.Status + " " + string(msg)),
			RetryAfter: parseRetryAfter(resp.Header),
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Noop is the Purger used when the CDN is disabled.
type Noop struct {
	Logger zerolog.Logger
}

func (n Noop) PurgeKeys(_ context.Context, keys ...string) error {
	n.Logger.Debug().Strs("surrogate_keys", keys).Msg("CDN disabled, skipping purge")
	return nil
}

func (n Noop) PurgeAll(context.Context) error {
	n.Logger.Debug().Msg("CDN disabled, skipping purge all")
	return nil
}
