package connection

import "time"

// BackoffDelay returns min(base * 2^attempt, max). attempt counts from 0.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	if base >= max {
		return max
	}

	delay := base
	for i := 0; i < attempt; i++ {
		// Doubling past max (or overflowing) ends the loop early.
		if delay > max/2 {
			return max
		}
		delay *= 2
	}
	return delay
}
