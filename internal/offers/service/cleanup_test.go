package service

import (
	"testing"
	"time"
)

func TestCleanupRetryDelayBacksOff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 16 * time.Minute},
		{7, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tt := range tests {
		if got := cleanupRetryDelay(tt.attempts); got != tt.want {
			t.Errorf("cleanupRetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestCleanupRetryDelayNeverImmediate(t *testing.T) {
	for attempts := 0; attempts <= cleanupMaxAttempts; attempts++ {
		if got := cleanupRetryDelay(attempts); got < 30*time.Second {
			t.Fatalf("cleanupRetryDelay(%d) = %v, want at least 30s", attempts, got)
		}
	}
}
