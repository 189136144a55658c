package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_StrictlyIncreasing(t *testing.T) {
	issuer := NewIssuer()

	var prev int64
	for i := 0; i < 100; i++ {
		n := issuer.Issue("k1")
		assert.Greater(t, n, prev, "nonce must strictly increase")
		prev = n
	}
}

func TestIssuer_SeededFromClock(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(WithClock(func() time.Time { return now }))

	first := issuer.Issue("k1")
	assert.Equal(t, now.UnixMicro(), first)

	// Frozen clock: subsequent issues clamp to last+1.
	second := issuer.Issue("k1")
	assert.Equal(t, first+1, second)
}

func TestIssuer_ClockMovingBackward(t *testing.T) {
	current := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(WithClock(func() time.Time { return current }))

	first := issuer.Issue("k1")

	// Clock jumps back an hour; issued values must not decrease.
	current = current.Add(-time.Hour)
	second := issuer.Issue("k1")
	assert.Greater(t, second, first)
}

func TestIssuer_ConcurrentIssueUnique(t *testing.T) {
	const (
		goroutines = 8
		perRoutine = 250
	)

	issuer := NewIssuer()
	results := make([][]int64, goroutines)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			out := make([]int64, 0, perRoutine)
			for i := 0; i < perRoutine; i++ {
				out = append(out, issuer.Issue("k1"))
			}
			results[g] = out
		}(g)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, goroutines*perRoutine)
	for g, out := range results {
		for i := 1; i < len(out); i++ {
			// Each caller observes strict increase across its own
			// completed issuances.
			require.Greater(t, out[i], out[i-1], "goroutine %d saw a non-increasing nonce", g)
		}
		for _, n := range out {
			_, dup := seen[n]
			require.False(t, dup, "duplicate nonce %d", n)
			seen[n] = struct{}{}
		}
	}

	require.Len(t, seen, goroutines*perRoutine)
}

func TestIssuer_BumpLeapsAhead(t *testing.T) {
	issuer := NewIssuer()

	var preBumpMax int64
	for i := 0; i < 10; i++ {
		n := issuer.Issue("k1")
		require.Greater(t, n, preBumpMax)
		preBumpMax = n
	}

	bumped := issuer.Bump("k1", 1_000_000)
	assert.GreaterOrEqual(t, bumped, preBumpMax+1_000_000)

	next := issuer.Issue("k1")
	assert.Greater(t, next, bumped)
	assert.GreaterOrEqual(t, next, preBumpMax+1_000_000)
}

func TestIssuer_BumpNeverDecreases(t *testing.T) {
	issuer := NewIssuer()

	first := issuer.Issue("k1")

	// Degenerate deltas still move forward.
	assert.Greater(t, issuer.Bump("k1", 0), first)
	assert.Greater(t, issuer.Bump("k1", -5), first)
}

func TestIssuer_BumpOnFreshKey(t *testing.T) {
	issuer := NewIssuer()

	bumped := issuer.Bump("fresh", 1_000)
	assert.Positive(t, bumped)
	assert.Greater(t, issuer.Issue("fresh"), bumped)
}

func TestIssuer_FloorRaisesOnly(t *testing.T) {
	issuer := NewIssuer()

	issuer.Floor("k1", 5_000_000_000_000_000)
	n := issuer.Issue("k1")
	assert.Greater(t, n, int64(5_000_000_000_000_000))

	// A lower floor is a no-op.
	issuer.Floor("k1", 10)
	assert.Greater(t, issuer.Issue("k1"), n)
}

func TestIssuer_KeysAreIndependent(t *testing.T) {
	issuer := NewIssuer()

	a := issuer.Issue("ka")
	issuer.Bump("kb", 10_000_000_000)

	// Bumping kb must not disturb ka's sequence.
	assert.Equal(t, a, issuer.Last("ka"))
	assert.Greater(t, issuer.Issue("ka"), a)
}

func TestIssuer_LastTracksIssued(t *testing.T) {
	issuer := NewIssuer()

	assert.Zero(t, issuer.Last("k1"))
	n := issuer.Issue("k1")
	assert.Equal(t, n, issuer.Last("k1"))
}
