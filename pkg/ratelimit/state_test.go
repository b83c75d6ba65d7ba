package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name       string
		lastUpdate time.Time
		maxAge     time.Duration
		expected   bool
	}{
		{name: "fresh state", lastUpdate: time.Now(), maxAge: 5 * time.Minute, expected: false},
		{name: "stale state", lastUpdate: time.Now().Add(-10 * time.Minute), maxAge: 5 * time.Minute, expected: true},
		{name: "just under max age", lastUpdate: time.Now().Add(-4 * time.Minute), maxAge: 5 * time.Minute, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{LastUpdate: tt.lastUpdate}
			if got := s.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Bands(t *testing.T) {
	future := time.Now().Add(30 * time.Second)
	past := time.Now().Add(-time.Second)

	tests := []struct {
		name         string
		remaining    int
		resetAt      time.Time
		wantBlock    bool
		wantThrottle bool
		wantHealthy  bool
	}{
		{name: "healthy", remaining: 100, resetAt: future, wantHealthy: true},
		{name: "at healthy threshold", remaining: ThresholdHealthy, resetAt: future, wantHealthy: true},
		{name: "between warning and healthy", remaining: ThresholdWarning, resetAt: future},
		{name: "warning", remaining: ThresholdWarning - 1, resetAt: future, wantThrottle: true},
		{name: "critical", remaining: ThresholdCritical - 1, resetAt: future, wantBlock: true},
		{name: "critical but window reset", remaining: 0, resetAt: past},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{Remaining: tt.remaining, ResetAt: tt.resetAt}
			s.UpdateHealth()

			if got := s.NeedsBlock(); got != tt.wantBlock {
				t.Errorf("NeedsBlock() = %v, want %v", got, tt.wantBlock)
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

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	s := &RateLimitState{ResetAt: time.Now().Add(-time.Minute)}
	if got := s.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() for past reset = %v, want 0", got)
	}

	s.ResetAt = time.Now().Add(time.Minute)
	if got := s.TimeUntilReset(); got <= 50*time.Second || got > time.Minute {
		t.Errorf("TimeUntilReset() = %v, want about 1m", got)
	}
}
