package venue

import (
	"time"

	"github.com/google/uuid"
)

// State is the supervisor's connection state. Exactly one supervisor
// owns one State value; transitions happen only inside the run loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateLive
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// EventType classifies supervisor events.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventAuthenticated EventType = "authenticated"
	EventDisconnected  EventType = "disconnected"
	EventMessage       EventType = "message"

	// EventCredentialFailure signals that the venue rejected the
	// credentials repeatedly and the supervisor has stopped
	// hammering the handshake. The owning process decides whether to
	// alert or stop trading.
	EventCredentialFailure EventType = "credential_failure"
)

// Event is what the supervisor emits toward its consumer. Message
// events carry the raw venue payload in venue delivery order; nothing
// is buffered across a reconnect boundary.
type Event struct {
	Type      EventType
	SessionID uuid.UUID // identifies the connection attempt
	Reason    string    // set on Disconnected and CredentialFailure
	Payload   []byte    // set on Message
	Timestamp time.Time
}
