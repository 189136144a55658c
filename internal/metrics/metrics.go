// Package metrics exposes Prometheus instrumentation for the
// connectivity core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	// ConnectionState mirrors the supervisor state machine
	// (0=disconnected, 1=connecting, 2=authenticating, 3=live, 4=backoff).
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "venuelink_connection_state",
		Help: "Current connection state (0=disconnected, 1=connecting, 2=authenticating, 3=live, 4=backoff)",
	})

	// BackoffTransitions counts every entry into the backoff state.
	BackoffTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuelink_backoff_transitions_total",
		Help: "Total number of transitions into the backoff state",
	})

	// MessagesReceived counts inbound venue messages delivered while live.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuelink_messages_received_total",
		Help: "Total number of messages received from the venue",
	})

	// AuthRejections counts venue-side handshake rejections.
	AuthRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuelink_auth_rejections_total",
		Help: "Total number of rejected authentication handshakes",
	})

	// AuthHandshakes counts successful authentications.
	AuthHandshakes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuelink_auth_handshakes_total",
		Help: "Total number of successful authentication handshakes",
	})
)

// Nonce metrics
var (
	// NoncesIssued counts nonces handed out across all keys.
	NoncesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuelink_nonces_issued_total",
		Help: "Total number of nonces issued",
	})

	// NonceBumps counts forced forward jumps of the nonce counter.
	NonceBumps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuelink_nonce_bumps_total",
		Help: "Total number of nonce counter bumps",
	})
)
