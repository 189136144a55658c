package auth

import (
	"sync"
	"time"

	"github.com/quantfabric/venuelink/internal/metrics"
)

// Issuer hands out strictly increasing nonces per key identifier. Every
// authenticated request path for a credential draws from the same
// Issuer instance; issuance is serialized per key only, so unrelated
// keys never contend.
type Issuer struct {
	mu       sync.RWMutex
	counters map[string]*keyCounter
	now      func() time.Time
}

type keyCounter struct {
	mu   sync.Mutex
	last int64
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the seed clock. Used in tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an empty issuer. Counters are created lazily on
// first issuance for a key, seeded from the current time in
// microseconds so nonces across process runs are very unlikely to
// collide. That seeding is best effort only; callers that need a hard
// cross-restart guarantee should raise the floor from a durable
// checkpoint via Floor before first use.
func NewIssuer(opts ...IssuerOption) *Issuer {
	i := &Issuer{
		counters: make(map[string]*keyCounter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns the next nonce for keyID. The value is strictly greater
// than every value previously returned for the same key, regardless of
// how concurrent callers interleave.
func (i *Issuer) Issue(keyID string) int64 {
	c := i.counter(keyID)

	c.mu.Lock()
	next := i.now().UnixMicro()
	if next <= c.last {
		// Clock stalled or moved backward, or a bump pushed the
		// counter past wall time. Clamp so the value never decreases.
		next = c.last + 1
	}
	c.last = next
	c.mu.Unlock()

	metrics.NoncesIssued.Inc()
	return next
}

// Bump forcibly advances the counter for keyID to at least
// current+minDelta and returns the new value. Used after the venue
// rejects a nonce as too small, to leap past whatever it last observed.
// A non-positive delta still advances by one; the counter never moves
// backward.
func (i *Issuer) Bump(keyID string, minDelta int64) int64 {
	if minDelta < 1 {
		minDelta = 1
	}
	c := i.counter(keyID)

	c.mu.Lock()
	if c.last == 0 {
		c.last = i.now().UnixMicro()
	}
	c.last += minDelta
	next := c.last
	c.mu.Unlock()

	metrics.NonceBumps.Inc()
	return next
}

// Floor raises the counter for keyID to at least floor. It never
// lowers the counter. Used to seed from a durable checkpoint at
// startup.
func (i *Issuer) Floor(keyID string, floor int64) {
	c := i.counter(keyID)

	c.mu.Lock()
	if floor > c.last {
		c.last = floor
	}
	c.mu.Unlock()
}

// Last returns the most recently issued nonce for keyID, or zero if
// none has been issued. Intended for checkpointing, not for predicting
// future values.
func (i *Issuer) Last(keyID string) int64 {
	c := i.counter(keyID)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (i *Issuer) counter(keyID string) *keyCounter {
	i.mu.RLock()
	c, ok := i.counters[keyID]
	i.mu.RUnlock()
	if ok {
		return c
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if c, ok = i.counters[keyID]; ok {
		return c
	}
	c = &keyCounter{}
	i.counters[keyID] = c
	return c
}
