// Package bridge fans supervisor events out to collaborator processes
// over NATS.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quantfabric/venuelink/internal/venue"
)

// publishedEvent is the wire form of a supervisor event on NATS.
// Message payloads are forwarded verbatim so consumers see exactly what
// the venue sent, in delivery order.
type publishedEvent struct {
	Type      venue.EventType `json:"type"`
	SessionID string          `json:"session_id"`
	Reason    string          `json:"reason,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bridge publishes supervisor events to NATS subjects under a
// configurable prefix: <prefix>.state for lifecycle events and
// <prefix>.stream for venue messages.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// New connects to NATS and returns a bridge.
func New(url, prefix string, log zerolog.Logger) (*Bridge, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Bridge{
		nc:     nc,
		prefix: prefix,
		log:    log.With().Str("component", "bridge").Logger(),
	}, nil
}

// Run consumes events until the channel closes or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, events <-chan venue.Event) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.publish(ev); err != nil {
				// A lost event is not worth dropping the session over;
				// consumers resynchronize from state events.
				b.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to publish event")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bridge) publish(ev venue.Event) error {
	subject := b.prefix + ".state"
	if ev.Type == venue.EventMessage {
		subject = b.prefix + ".stream"
	}

	data, err := json.Marshal(publishedEvent{
		Type:      ev.Type,
		SessionID: ev.SessionID.String(),
		Reason:    ev.Reason,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return b.nc.Publish(subject, data)
}

// Close drains and closes the NATS connection.
func (b *Bridge) Close() {
	if err := b.nc.Drain(); err != nil {
		b.log.Warn().Err(err).Msg("NATS drain failed")
	}
}
