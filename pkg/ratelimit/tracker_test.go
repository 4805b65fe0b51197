package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestParseHeaders(t *testing.T) {
	reset := time.Now().Add(time.Minute).Unix()

	tests := []struct {
		name          string
		remain        string
		reset         string
		wantOK        bool
		wantErr       bool
		wantRemaining int
	}{
		{name: "healthy", remain: "900", reset: strconv.FormatInt(reset, 10), wantOK: true, wantRemaining: 900},
		{name: "critical", remain: "3", reset: strconv.FormatInt(reset, 10), wantOK: true, wantRemaining: 3},
		{name: "no headers", wantOK: false},
		{name: "bad remaining", remain: "lots", reset: "1", wantErr: true},
		{name: "missing reset", remain: "10", wantErr: true},
		{name: "bad reset", remain: "10", reset: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.remain != "" {
				h.Set(HeaderRemaining, tt.remain)
			}
			if tt.reset != "" {
				h.Set(HeaderReset, tt.reset)
			}

			state, ok, err := ParseHeaders(h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ParseHeaders() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if state.ResetAt.Unix() != reset {
				t.Errorf("ResetAt = %v, want %v", state.ResetAt.Unix(), reset)
			}
		})
	}
}

func TestUpdateFromHeaders_NoHeadersIsNoop(t *testing.T) {
	// nil Redis: must return before touching it.
	tracker := NewTracker(nil, zerolog.Nop())
	if err := tracker.UpdateFromHeaders(context.Background(), http.Header{}); err != nil {
		t.Errorf("UpdateFromHeaders() = %v, want nil", err)
	}
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	h := http.Header{}
	h.Set(HeaderRemaining, "abc")
	if err := tracker.UpdateFromHeaders(context.Background(), h); err == nil {
		t.Error("expected error for invalid header")
	}
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 14})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestTracker(t *testing.T) {
	runTrackerSuite(t, setupTestRedis(t))
}

func runTrackerSuite(t *testing.T, client *redis.Client) {
	ctx := context.Background()
	tracker := NewTracker(client, zerolog.Nop())
	var slept time.Duration
	tracker.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}

	set := func(t *testing.T, remain int) {
		t.Helper()
		h := http.Header{}
		h.Set(HeaderRemaining, strconv.Itoa(remain))
		h.Set(HeaderReset, strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		if err := tracker.UpdateFromHeaders(ctx, h); err != nil {
			t.Fatalf("UpdateFromHeaders() error = %v", err)
		}
	}

	t.Run("default state is healthy", func(t *testing.T) {
		state, err := tracker.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if !state.IsHealthy {
			t.Error("default state should be healthy")
		}
		allowed, err := tracker.ShouldAllowRequest(ctx)
		if err != nil || !allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v", allowed, err)
		}
	})

	t.Run("state round trip", func(t *testing.T) {
		set(t, 75)
		state, err := tracker.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if state.Remaining != 75 {
			t.Errorf("Remaining = %d, want 75", state.Remaining)
		}
		if state.IsStale(time.Minute) {
			t.Error("fresh state reported stale")
		}
	})

	t.Run("stale state is ignored", func(t *testing.T) {
		old := time.Now().Add(-2 * MaxStateAge)
		client.Set(ctx, RedisKeyRemaining, 1, 0)
		client.Set(ctx, RedisKeyResetTimestamp, time.Now().Add(time.Hour).Unix(), 0)
		client.Set(ctx, RedisKeyLastUpdate, old.UnixNano(), 0)

		state, err := tracker.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if state.Remaining != 1000 || !state.IsHealthy {
			t.Errorf("GetState() = %+v, want default healthy state", state)
		}
		allowed, err := tracker.ShouldAllowRequest(ctx)
		if err != nil || !allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v", allowed, err)
		}
	})

	t.Run("warning throttles", func(t *testing.T) {
		set(t, 10)
		slept = 0
		allowed, err := tracker.ShouldAllowRequest(ctx)
		if err != nil || !allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v", allowed, err)
		}
		if slept != time.Second {
			t.Errorf("slept %v, want 1s", slept)
		}
	})

	t.Run("critical blocks", func(t *testing.T) {
		set(t, 1)
		allowed, err := tracker.ShouldAllowRequest(ctx)
		if err != nil {
			t.Fatalf("ShouldAllowRequest() error = %v", err)
		}
		if allowed {
			t.Error("critical state should block")
		}
	})
}
