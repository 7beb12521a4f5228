package connection

import (
	"math"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{math.MaxInt32, 30 * time.Second},
		{-1, 1 * time.Second},
	}

	for _, tt := range tests {
		if got := BackoffDelay(tt.attempt, base, max); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 64; attempt++ {
		d := BackoffDelay(attempt, 250*time.Millisecond, 45*time.Second)
		if d < prev {
			t.Fatalf("BackoffDelay(%d) = %v, smaller than previous %v", attempt, d, prev)
		}
		if d > 45*time.Second {
			t.Fatalf("BackoffDelay(%d) = %v, exceeds max", attempt, d)
		}
		prev = d
	}
}

func TestBackoffDelay_BaseAboveMax(t *testing.T) {
	if got := BackoffDelay(0, time.Minute, 30*time.Second); got != 30*time.Second {
		t.Errorf("BackoffDelay = %v, want 30s", got)
	}
}
