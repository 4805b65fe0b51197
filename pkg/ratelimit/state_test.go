package ratelimit

import (
	"testing"
	"time"
)

func TestState_Decisions(t *testing.T) {
	future := time.Now().Add(30 * time.Second)
	past := time.Now().Add(-30 * time.Second)

	tests := []struct {
		name         string
		remaining    int
		resetAt      time.Time
		wantBlock    bool
		wantThrottle bool
		wantHealthy  bool
	}{
		{"healthy", 500, future, false, false, true},
		{"at healthy threshold", ThresholdHealthy, future, false, false, true},
		{"below healthy", 30, future, false, false, false},
		{"warning", 10, future, false, true, false},
		{"critical", 2, future, true, false, false},
		{"critical but window reset", 2, past, false, false, false},
		{"warning but window reset", 10, past, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{Remaining: tt.remaining, ResetAt: tt.resetAt}
			s.UpdateHealth()

			if got := s.NeedsCriticalBlock(); got != tt.wantBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.wantBlock)
			}
			if got := s.NeedsThrottling(); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
			if s.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", s.IsHealthy, tt.wantHealthy)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	s := &State{ResetAt: time.Now().Add(-time.Minute)}
	if got := s.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0", got)
	}

	s.ResetAt = time.Now().Add(time.Minute)
	if got := s.TimeUntilReset(); got <= 59*time.Second || got > time.Minute {
		t.Errorf("TimeUntilReset() = %v, want ~1m", got)
	}
}

func TestState_IsStale(t *testing.T) {
	s := &State{LastUpdate: time.Now().Add(-2 * time.Minute)}
	if !s.IsStale(time.Minute) {
		t.Error("state updated 2m ago should be stale after 1m")
	}
	if s.IsStale(5 * time.Minute) {
		t.Error("state updated 2m ago should be fresh within 5m")
	}
}
