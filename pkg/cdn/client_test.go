package cdn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/internal/testutil"
	"github.com/Sternrassler/drinks-fyi/pkg/ratelimit"
)

func newTestClient(t *testing.T, mock *testutil.MockFastly, mutate func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		APIURL:    mock.URL(),
		ServiceID: "svc123",
		Token:     "secret-token",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client.SetHTTPClient(mock.Client())
	client.SetRetryConfig(fastRetry)
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{name: "valid config", config: Config{APIURL: "https://api.fastly.com", ServiceID: "s", Token: "t"}},
		{name: "missing api url", config: Config{ServiceID: "s", Token: "t"}, errorMsg: "api url is required"},
		{name: "missing service", config: Config{APIURL: "https://api.fastly.com", Token: "t"}, errorMsg: "service id is required"},
		{name: "missing token", config: Config{APIURL: "https://api.fastly.com", ServiceID: "s"}, errorMsg: "api token is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config, zerolog.Nop())
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if client.config.Timeout != 10*time.Second {
					t.Errorf("default Timeout = %v, want 10s", client.config.Timeout)
				}
				return
			}
			if err == nil || err.Error() != tt.errorMsg {
				t.Errorf("New() error = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestPurgeKeys_SendsRequest(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	err := client.PurgeKeys(context.Background(), "drink:negroni", "drinks", "drink:negroni", " ")
	if err != nil {
		t.Fatalf("PurgeKeys() error = %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(calls))
	}
	call := calls[0]
	if call.Path != "/service/svc123/purge" {
		t.Errorf("Path = %q", call.Path)
	}
	if call.Token != "secret-token" {
		t.Errorf("Fastly-Key = %q", call.Token)
	}
	if call.Soft {
		t.Error("soft purge header sent without SoftPurge")
	}
	want := []string{"drink:negroni", "drinks"}
	if fmt.Sprint(call.SurrogateKeys) != fmt.Sprint(want) {
		t.Errorf("SurrogateKeys = %v, want %v", call.SurrogateKeys, want)
	}
}

func TestPurgeKeys_NoKeysNoRequest(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	if err := client.PurgeKeys(context.Background()); err != nil {
		t.Fatalf("PurgeKeys() error = %v", err)
	}
	if n := len(mock.Calls()); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestPurgeKeys_Batches(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()

	keys := make([]string, MaxKeysPerRequest+10)
	for i := range keys {
		keys[i] = "drink:d" + strconv.Itoa(i)
	}

	client := newTestClient(t, mock, nil)
	if err := client.PurgeKeys(context.Background(), keys...); err != nil {
		t.Fatalf("PurgeKeys() error = %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(calls))
	}
	if len(calls[0].SurrogateKeys) != MaxKeysPerRequest || len(calls[1].SurrogateKeys) != 10 {
		t.Errorf("batch sizes = %d, %d", len(calls[0].SurrogateKeys), len(calls[1].SurrogateKeys))
	}
	if len(mock.PurgedKeys()) != len(keys) {
		t.Errorf("purged %d keys, want %d", len(mock.PurgedKeys()), len(keys))
	}
}

func TestPurgeKeys_SoftPurge(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()

	client := newTestClient(t, mock, func(c *Config) { c.SoftPurge = true })
	if err := client.PurgeKeys(context.Background(), "tags"); err != nil {
		t.Fatalf("PurgeKeys() error = %v", err)
	}
	if !mock.Calls()[0].Soft {
		t.Error("Fastly-Soft-Purge header missing")
	}
}

func TestPurgeAll(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	if err := client.PurgeAll(context.Background()); err != nil {
		t.Fatalf("PurgeAll() error = %v", err)
	}
	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Path != "/service/svc123/purge_all" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestPurge_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()
	mock.Enqueue(testutil.NewServerErrorResponse(), testutil.NewOKResponse())

	client := newTestClient(t, mock, nil)
	if err := client.PurgeKeys(context.Background(), "drinks"); err != nil {
		t.Fatalf("PurgeKeys() error = %v", err)
	}
	if n := len(mock.Calls()); n != 2 {
		t.Errorf("Expected 2 requests (1 retry), got %d", n)
	}
}

func TestPurge_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()
	mock.Enqueue(testutil.NewRateLimitResponse(), testutil.NewRateLimitResponse(), testutil.NewOKResponse())

	client := newTestClient(t, mock, nil)
	if err := client.PurgeAll(context.Background()); err != nil {
		t.Fatalf("PurgeAll() error = %v", err)
	}
	if n := len(mock.Calls()); n != 3 {
		t.Errorf("Expected 3 requests, got %d", n)
	}
}

func TestPurge_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()
	mock.Enqueue(testutil.NewUnauthorizedResponse())

	client := newTestClient(t, mock, nil)
	err := client.PurgeKeys(context.Background(), "drinks")

	var pe *PurgeError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected PurgeError, got %v", err)
	}
	if pe.StatusCode != http.StatusUnauthorized || pe.ErrorClass != ErrorClassClient {
		t.Errorf("PurgeError = %+v", pe)
	}
	if n := len(mock.Calls()); n != 1 {
		t.Errorf("Expected 1 request, got %d", n)
	}
}

func TestPurge_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()
	for i := 0; i < 3; i++ {
		mock.Enqueue(testutil.NewServerErrorResponse())
	}

	client := newTestClient(t, mock, nil)
	err := client.PurgeAll(context.Background())
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestPurgeKeys_ContinuesAfterFailedBatch(t *testing.T) {
	mock := testutil.NewMockFastly()
	defer mock.Close()
	mock.Enqueue(testutil.NewUnauthorizedResponse())

	keys := make([]string, MaxKeysPerRequest+1)
	for i := range keys {
		keys[i] = "tag:t" + strconv.Itoa(i)
	}

	client := newTestClient(t, mock, nil)
	err := client.PurgeKeys(context.Background(), keys...)
	if err == nil {
		t.Fatal("Expected error from first batch")
	}
	if n := len(mock.Calls()); n != 2 {
		t.Errorf("Expected both batches to be attempted, got %d requests", n)
	}
}

func TestPurge_RateLimitTracker(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 13})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})

	mock := testutil.NewMockFastly()
	defer mock.Close()

	tracker := ratelimit.NewTracker(rdb, zerolog.Nop())
	client := newTestClient(t, mock, func(c *Config) { c.Tracker = tracker })

	if err := client.PurgeKeys(ctx, "drinks"); err != nil {
		t.Fatalf("PurgeKeys() error = %v", err)
	}
	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 900 {
		t.Errorf("tracker Remaining = %d, want 900 from response headers", state.Remaining)
	}

	h := http.Header{}
	h.Set(ratelimit.HeaderRemaining, "1")
	h.Set(ratelimit.HeaderReset, strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
	if err := tracker.UpdateFromHeaders(ctx, h); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	err = client.PurgeKeys(ctx, "drinks")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if n := len(mock.Calls()); n != 1 {
		t.Errorf("blocked purge reached the API: %d requests", n)
	}
}

func TestNoop(t *testing.T) {
	var p Purger = Noop{Logger: zerolog.Nop()}
	if err := p.PurgeKeys(context.Background(), "drinks"); err != nil {
		t.Errorf("PurgeKeys() = %v", err)
	}
	if err := p.PurgeAll(context.Background()); err != nil {
		t.Errorf("PurgeAll() = %v", err)
	}
}
