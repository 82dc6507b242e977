package security

import (
	"testing"
	"time"
)

func TestIsExpiredWithGracePeriod(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		grace     time.Duration
		want      bool
	}{
		{"zero time never expires", time.Time{}, 0, false},
		{"future timestamp", now.Add(time.Hour), 5 * time.Second, false},
		{"well past expiry", now.Add(-time.Hour), 5 * time.Second, true},
		{"inside grace window", now.Add(-2 * time.Second), 5 * time.Second, false},
		{"just past grace window", now.Add(-10 * time.Second), 5 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpiredWithGracePeriod(tt.expiresAt, tt.grace); got != tt.want {
				t.Errorf("IsExpiredWithGracePeriod(%v, %v) = %v, want %v", tt.expiresAt, tt.grace, got, tt.want)
			}
		})
	}
}

func TestIsExpiredUsesDefaultGrace(t *testing.T) {
	if IsExpired(time.Now().Add(-time.Second)) {
		t.Error("one second past expiry is still inside the default grace period")
	}
	if !IsExpired(time.Now().Add(-time.Minute)) {
		t.Error("one minute past expiry should be expired")
	}
}
