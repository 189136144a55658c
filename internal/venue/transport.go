package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established streaming connection to the venue. A
// transport is owned by exactly one supervisor; Close may be called
// from another goroutine to unblock a pending read.
type Transport interface {
	// ReadMessage blocks until the next inbound frame, a read deadline
	// expiry, or the connection dropping.
	ReadMessage() ([]byte, error)

	// WriteJSON sends v as a single JSON frame.
	WriteJSON(v interface{}) error

	// SetReadDeadline bounds the next ReadMessage call. A zero time
	// clears the deadline.
	SetReadDeadline(t time.Time) error

	Close() error
}

// Dialer establishes transports. Abstracted so tests can drive the
// supervisor with scripted connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// wsDialer dials real websocket connections.
type wsDialer struct {
	dialer *websocket.Dialer
	// writeWait bounds each outbound write.
	writeWait time.Duration
}

// NewWebsocketDialer returns a Dialer backed by gorilla/websocket.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return &wsDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		writeWait: 10 * time.Second,
	}
}

func (d *wsDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	conn, _, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &wsTransport{conn: conn, writeWait: d.writeWait}, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, payload, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (t *wsTransport) WriteJSON(v interface{}) error {
	t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *wsTransport) Close() error {
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
