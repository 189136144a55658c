package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/venuelink/internal/venue"
)

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host: "127.0.0.1",
		Port: -1,
	})
	require.NoError(t, err)

	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second), "embedded NATS server did not start")
	t.Cleanup(srv.Shutdown)
	return srv
}

func newTestBridge(t *testing.T, srv *server.Server) *Bridge {
	t.Helper()

	b, err := New(srv.ClientURL(), "venuelink", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func collect(t *testing.T, srv *server.Server, subject string) <-chan *nats.Msg {
	t.Helper()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	ch := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(subject, ch)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Unsubscribe() })

	// Make sure the subscription is registered before publishing starts.
	require.NoError(t, nc.Flush())
	return ch
}

func recv(t *testing.T, ch <-chan *nats.Msg) publishedEvent {
	t.Helper()

	select {
	case msg := <-ch:
		var ev publishedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published event")
		return publishedEvent{}
	}
}

func TestBridge_RoutesBySubject(t *testing.T) {
	srv := runNATSServer(t)
	b := newTestBridge(t, srv)

	stateCh := collect(t, srv, "venuelink.state")
	streamCh := collect(t, srv, "venuelink.stream")

	events := make(chan venue.Event, 8)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), events) }()

	sessionID := uuid.New()
	events <- venue.Event{
		Type:      venue.EventAuthenticated,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
	events <- venue.Event{
		Type:      venue.EventMessage,
		SessionID: sessionID,
		Payload:   []byte(`{"channel":"trades","price":"50000"}`),
		Timestamp: time.Now(),
	}

	state := recv(t, stateCh)
	assert.Equal(t, venue.EventAuthenticated, state.Type)
	assert.Equal(t, sessionID.String(), state.SessionID)

	stream := recv(t, streamCh)
	assert.Equal(t, venue.EventMessage, stream.Type)
	assert.JSONEq(t, `{"channel":"trades","price":"50000"}`, string(stream.Payload),
		"venue payloads must be forwarded verbatim")

	close(events)
	select {
	case err := <-done:
		assert.NoError(t, err, "Run must return nil when the event channel closes")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after channel close")
	}
}

func TestBridge_PreservesMessageOrder(t *testing.T) {
	srv := runNATSServer(t)
	b := newTestBridge(t, srv)

	streamCh := collect(t, srv, "venuelink.stream")

	events := make(chan venue.Event, 32)
	go b.Run(context.Background(), events)

	sessionID := uuid.New()
	const n = 20
	for i := 0; i < n; i++ {
		payload, err := json.Marshal(map[string]int{"seq": i})
		require.NoError(t, err)
		events <- venue.Event{Type: venue.EventMessage, SessionID: sessionID, Payload: payload}
	}
	close(events)

	for i := 0; i < n; i++ {
		ev := recv(t, streamCh)
		var body map[string]int
		require.NoError(t, json.Unmarshal(ev.Payload, &body))
		assert.Equal(t, i, body["seq"])
	}
}

func TestBridge_RunStopsOnContextCancel(t *testing.T) {
	srv := runNATSServer(t)
	b := newTestBridge(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan venue.Event)

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, events) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit on context cancellation")
	}
}

func TestNew_ConnectFailure(t *testing.T) {
	_, err := New("nats://127.0.0.1:1", "venuelink", zerolog.Nop())
	assert.Error(t, err)
}
