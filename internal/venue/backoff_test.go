package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Acceptance envelope for baseDelay=0.5s, maxBackoff=1.0s.
func TestBackoff_Envelope(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:  500 * time.Millisecond,
		MaxBackoff: time.Second,
	}

	// Jitter is random; sample repeatedly so a pathological draw
	// cannot slip through.
	for i := 0; i < 1000; i++ {
		d1 := cfg.Delay(1)
		assert.GreaterOrEqual(t, d1, 100*time.Millisecond)
		assert.LessOrEqual(t, d1, 1500*time.Millisecond)

		assert.LessOrEqual(t, cfg.Delay(3), 1500*time.Millisecond)
		assert.LessOrEqual(t, cfg.Delay(6), 1600*time.Millisecond)
	}
}

func TestBackoff_GrowsThenCaps(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxBackoff: 2 * time.Second,
	}

	// Strip jitter headroom by comparing against the deterministic
	// part plus its 25% bound.
	for attempt := 1; attempt <= 20; attempt++ {
		d := cfg.Delay(attempt)
		assert.LessOrEqual(t, d, 2*time.Second+500*time.Millisecond, "attempt %d", attempt)
		assert.Positive(t, d)
	}

	// Large attempt counts must not overflow.
	assert.LessOrEqual(t, cfg.Delay(64), 2*time.Second+500*time.Millisecond)
}

func TestBackoff_NeverNearZero(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:  time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
	}

	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, cfg.Delay(1), 100*time.Millisecond,
			"tiny base delays must still be floored against retry storms")
	}
}

func TestBackoff_AttemptBelowOne(t *testing.T) {
	cfg := DefaultBackoffConfig()
	assert.Positive(t, cfg.Delay(0))
	assert.Positive(t, cfg.Delay(-3))
}
