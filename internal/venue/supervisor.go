// Package venue manages the streaming session with the remote venue:
// connect, authenticate, stream, detect failure, back off, repeat.
package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/quantfabric/venuelink/internal/auth"
	"github.com/quantfabric/venuelink/internal/metrics"
)

// defaultBumpDelta is the forward jump applied to the nonce counter
// after the venue reports a stale nonce. One second in microseconds,
// comfortably past anything the venue can have seen.
const defaultBumpDelta = 1_000_000

// ErrOutboundFull is returned by Send when the bounded outbound queue
// has no room.
var ErrOutboundFull = errors.New("outbound queue full")

// Config supplies everything the supervisor needs at construction. No
// environment parsing happens here; the owning process wires values in.
type Config struct {
	Endpoint   string
	Credential auth.Credential
	Backoff    BackoffConfig

	// HeartbeatTimeout bounds venue silence while live. Silence past
	// this is treated as a transport drop.
	HeartbeatTimeout time.Duration

	// AuthTimeout bounds the wait for the venue's handshake response.
	AuthTimeout time.Duration

	EventBuffer    int
	OutboundBuffer int

	// WriteRate / WriteBurst throttle outbound frames while live.
	WriteRate  rate.Limit
	WriteBurst int
}

func (c *Config) applyDefaults() {
	if c.Backoff.BaseDelay == 0 {
		c.Backoff = DefaultBackoffConfig()
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 256
	}
	if c.OutboundBuffer == 0 {
		c.OutboundBuffer = 64
	}
	if c.WriteRate == 0 {
		c.WriteRate = 10
	}
	if c.WriteBurst == 0 {
		c.WriteBurst = 20
	}
}

// Supervisor owns one logical streaming session. A single goroutine
// drives the state machine; collaborators observe state, consume the
// event channel, and push outbound frames through a bounded queue.
type Supervisor struct {
	cfg     Config
	dialer  Dialer
	nonces  *auth.Issuer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger

	state    atomic.Int32
	backoffs atomic.Int64

	events   chan Event
	outbound chan interface{}

	subMu sync.Mutex
	subs  []interface{}

	credOpen     atomic.Bool
	credNotified atomic.Bool

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// New validates the configuration and constructs a supervisor. The
// credential must already be constructed (and therefore non-empty);
// endpoint, dialer and issuer are required.
func New(cfg Config, dialer Dialer, nonces *auth.Issuer, log zerolog.Logger) (*Supervisor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("supervisor: endpoint cannot be empty")
	}
	if cfg.Credential.KeyID() == "" {
		return nil, fmt.Errorf("supervisor: credential is required")
	}
	if dialer == nil {
		return nil, fmt.Errorf("supervisor: dialer is required")
	}
	if nonces == nil {
		return nil, fmt.Errorf("supervisor: nonce issuer is required")
	}
	cfg.applyDefaults()

	s := &Supervisor{
		cfg:      cfg,
		dialer:   dialer,
		nonces:   nonces,
		limiter:  rate.NewLimiter(cfg.WriteRate, cfg.WriteBurst),
		log:      log.With().Str("component", "supervisor").Logger(),
		events:   make(chan Event, cfg.EventBuffer),
		outbound: make(chan interface{}, cfg.OutboundBuffer),
		done:     make(chan struct{}),
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "venue_auth",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		Timeout: 60 * time.Second,
		// Only venue-side rejections count against the credentials;
		// transport faults during the handshake stay out of the
		// breaker's bookkeeping.
		IsSuccessful: func(err error) bool {
			return !isRejection(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Credential breaker state changed")
			switch to {
			case gobreaker.StateOpen:
				s.credOpen.Store(true)
			case gobreaker.StateClosed, gobreaker.StateHalfOpen:
				s.credOpen.Store(false)
				s.credNotified.Store(false)
			}
		},
	})

	return s, nil
}

func isRejection(err error) bool {
	return errors.Is(err, auth.ErrAuthRejected) || errors.Is(err, auth.ErrNonceStale)
}

// Start launches the run loop. The supervisor reconnects until ctx is
// cancelled or Shutdown is called.
func (s *Supervisor) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		s.log.Warn().Msg("Supervisor already started")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
}

// Shutdown stops the run loop and waits for it to exit. Every wait
// point (dial, handshake, read, backoff sleep) unblocks.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("supervisor shutdown: %w", ctx.Err())
	}
}

// Events returns the event stream. Closed after shutdown completes.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Backoffs returns the number of backoff transitions since start, so a
// caller can detect persistent failure and escalate. The supervisor
// itself retries indefinitely by design.
func (s *Supervisor) Backoffs() int64 {
	return s.backoffs.Load()
}

// Subscribe registers a frame that is (re)sent after every successful
// authentication. Subscription state does not survive a reconnect on
// the venue side, so the supervisor replays the full set each session.
func (s *Supervisor) Subscribe(frame interface{}) {
	s.subMu.Lock()
	s.subs = append(s.subs, frame)
	live := s.State() == StateLive
	s.subMu.Unlock()

	if live {
		// Best effort for the current session; the registered set
		// covers future sessions.
		if err := s.Send(frame); err != nil {
			s.log.Warn().Err(err).Msg("Subscribe frame dropped, will send on next session")
		}
	}
}

// Send queues an outbound frame for the venue. Frames are written only
// while live, rate limited. Returns ErrOutboundFull when the bounded
// queue has no room.
func (s *Supervisor) Send(frame interface{}) error {
	select {
	case s.outbound <- frame:
		return nil
	default:
		return ErrOutboundFull
	}
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	metrics.ConnectionState.Set(float64(st))
}

func (s *Supervisor) emit(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now()
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// run drives the state machine until ctx is cancelled.
func (s *Supervisor) run(ctx context.Context) {
	defer func() {
		s.setState(StateDisconnected)
		close(s.events)
		close(s.done)
		s.log.Info().Msg("Supervisor stopped")
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		sessionID := uuid.New()
		logger := s.log.With().Str("session_id", sessionID.String()).Logger()

		s.setState(StateConnecting)
		transport, err := s.dialer.Dial(ctx, s.cfg.Endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("Connect failed")
			if !s.backoff(ctx, &attempt, sessionID, "connect_failed") {
				return
			}
			continue
		}

		s.emit(ctx, Event{Type: EventConnected, SessionID: sessionID})
		s.setState(StateAuthenticating)

		if err := s.authenticate(ctx, transport, logger); err != nil {
			transport.Close()
			if ctx.Err() != nil {
				return
			}
			reason := "auth_failed"
			if isRejection(err) || errors.Is(err, gobreaker.ErrOpenState) {
				reason = "auth_rejected"
				s.notifyCredentialFailure(ctx, sessionID, err)
			}
			logger.Warn().Err(err).Msg("Authentication failed")
			if !s.backoff(ctx, &attempt, sessionID, reason) {
				return
			}
			continue
		}

		s.setState(StateLive)
		attempt = 0
		s.emit(ctx, Event{Type: EventAuthenticated, SessionID: sessionID})
		logger.Info().Msg("Session live")

		if err := s.resubscribe(ctx, transport); err != nil {
			transport.Close()
			logger.Warn().Err(err).Msg("Resubscribe failed")
			if !s.backoff(ctx, &attempt, sessionID, "transport_error") {
				return
			}
			continue
		}

		reason := s.stream(ctx, transport, sessionID, logger)
		transport.Close()
		if ctx.Err() != nil {
			return
		}
		if !s.backoff(ctx, &attempt, sessionID, reason) {
			return
		}
	}
}

// backoff records the transition, emits Disconnected and sleeps for the
// computed delay. Returns false when ctx was cancelled.
func (s *Supervisor) backoff(ctx context.Context, attempt *int, sessionID uuid.UUID, reason string) bool {
	*attempt++
	delay := s.cfg.Backoff.Delay(*attempt)

	s.setState(StateBackoff)
	s.backoffs.Add(1)
	metrics.BackoffTransitions.Inc()
	s.emit(ctx, Event{Type: EventDisconnected, SessionID: sessionID, Reason: reason})

	s.log.Info().
		Int("attempt", *attempt).
		Dur("delay", delay).
		Str("reason", reason).
		Msg("Backing off before reconnect")

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// authenticate runs the signed handshake through the credential
// breaker. Repeated venue rejections open the breaker, which stops the
// supervisor from replaying bad credentials until the open timeout
// elapses.
func (s *Supervisor) authenticate(ctx context.Context, t Transport, logger zerolog.Logger) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.handshake(ctx, t, logger)
	})
	return err
}

// handshake performs the one-shot auth exchange: issue nonce, sign the
// canonical payload, send, await the ack. A stale-nonce rejection gets
// exactly one bump-and-retry before counting as a failure.
func (s *Supervisor) handshake(ctx context.Context, t Transport, logger zerolog.Logger) error {
	keyID := s.cfg.Credential.KeyID()

	nonce := s.nonces.Issue(keyID)
	resp, err := s.exchangeAuth(ctx, t, nonce)
	if err != nil {
		return err
	}

	if resp.NonceStale() {
		metrics.AuthRejections.Inc()
		bumped := s.nonces.Bump(keyID, defaultBumpDelta)
		logger.Warn().
			Int64("bumped_nonce", bumped).
			Msg("Venue reported stale nonce, bumping and retrying handshake")

		resp, err = s.exchangeAuth(ctx, t, bumped)
		if err != nil {
			return err
		}
	}

	if err := resp.Err(); err != nil {
		metrics.AuthRejections.Inc()
		return fmt.Errorf("%w: %s (code %d)", err, resp.Message, resp.Code)
	}

	metrics.AuthHandshakes.Inc()
	return nil
}

// exchangeAuth sends one auth frame and waits, bounded by AuthTimeout,
// for the venue's auth response. Non-auth frames received in between
// (greetings, info) are skipped.
func (s *Supervisor) exchangeAuth(ctx context.Context, t Transport, nonce int64) (auth.Response, error) {
	req := auth.NewRequest(s.cfg.Credential, nonce)
	if err := t.WriteJSON(req); err != nil {
		return auth.Response{}, fmt.Errorf("send auth frame: %w", err)
	}

	deadline := time.Now().Add(s.cfg.AuthTimeout)
	t.SetReadDeadline(deadline)
	defer t.SetReadDeadline(time.Time{})

	// A handful of non-auth frames may precede the ack.
	for i := 0; i < 8; i++ {
		if ctx.Err() != nil {
			return auth.Response{}, ctx.Err()
		}
		payload, err := t.ReadMessage()
		if err != nil {
			return auth.Response{}, fmt.Errorf("await auth response: %w", err)
		}

		var resp auth.Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		if resp.Event == auth.EventAuth {
			return resp, nil
		}
	}

	return auth.Response{}, fmt.Errorf("await auth response: no auth frame before timeout")
}

// notifyCredentialFailure emits EventCredentialFailure once per breaker
// open period.
func (s *Supervisor) notifyCredentialFailure(ctx context.Context, sessionID uuid.UUID, err error) {
	if !s.credOpen.Load() {
		return
	}
	if !s.credNotified.CompareAndSwap(false, true) {
		return
	}
	s.emit(ctx, Event{
		Type:      EventCredentialFailure,
		SessionID: sessionID,
		Reason:    err.Error(),
	})
}

// resubscribe replays the registered subscription set on the fresh
// session. Consumers must not assume any venue-side state survived the
// reconnect.
func (s *Supervisor) resubscribe(ctx context.Context, t Transport) error {
	s.subMu.Lock()
	subs := make([]interface{}, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, frame := range subs {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := t.WriteJSON(frame); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}
	return nil
}

// stream pumps inbound messages to the event channel and outbound
// frames to the venue until the transport drops, the venue goes silent
// past the heartbeat timeout, or ctx is cancelled. Returns the drop
// reason.
func (s *Supervisor) stream(ctx context.Context, t Transport, sessionID uuid.UUID, logger zerolog.Logger) string {
	streamDone := make(chan struct{})
	defer close(streamDone)

	// Unblock the pending read on cancellation.
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-streamDone:
		}
	}()

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case frame := <-s.outbound:
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
				if err := t.WriteJSON(frame); err != nil {
					select {
					case writeErr <- err:
					default:
					}
					return
				}
			case <-ctx.Done():
				return
			case <-streamDone:
				return
			}
		}
	}()

	for {
		select {
		case err := <-writeErr:
			logger.Warn().Err(err).Msg("Outbound write failed")
			return "transport_error"
		default:
		}

		t.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatTimeout))
		payload, err := t.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "shutdown"
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn().
					Dur("heartbeat_timeout", s.cfg.HeartbeatTimeout).
					Msg("Venue silent past heartbeat timeout")
				return "heartbeat_timeout"
			}
			logger.Warn().Err(err).Msg("Transport dropped")
			return "transport_drop"
		}

		metrics.MessagesReceived.Inc()
		s.emit(ctx, Event{Type: EventMessage, SessionID: sessionID, Payload: payload})
	}
}
