package venue

import (
	"math/rand/v2"
	"time"
)

// minDelay guards against zero or near-zero retries when the configured
// base delay is very small (thundering-herd avoidance).
const minDelay = 100 * time.Millisecond

// BackoffConfig bounds the reconnect delay schedule.
type BackoffConfig struct {
	BaseDelay  time.Duration
	MaxBackoff time.Duration
}

// DefaultBackoffConfig returns the delay bounds used when none are
// configured.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:  500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

// Delay computes the backoff delay for the given consecutive-failure
// attempt, counting from 1. The deterministic part is
// min(maxBackoff, base*2^(attempt-1)); a uniform jitter of up to a
// quarter of that value is added so simultaneous clients don't retry in
// lockstep.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			d = c.MaxBackoff
			break
		}
	}
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	if d < minDelay {
		d = minDelay
	}

	if jitter := d / 4; jitter > 0 {
		d += rand.N(jitter)
	}
	return d
}
