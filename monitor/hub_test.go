package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testing-zone/Valper-AI/events"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, time.Second, 5*time.Millisecond)
}

type wireEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func newServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestHub_StreamsBusEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	h := NewHub()
	defer h.Close()
	h.Attach(bus)
	srv := newServer(t, h)

	conn := dial(t, srv, "")
	waitClients(t, h, 1)

	bus.Publish(events.New(events.EventStateChanged, "s1", events.StateChangedData{From: "idle", To: "capturing"}))
	bus.Publish(events.New(events.EventTurnAppended, "s1", events.TurnAppendedData{Role: "user", Text: "hello"}))

	first := read(t, conn)
	assert.Equal(t, "state.changed", first.Type)
	assert.Equal(t, "s1", first.SessionID)
	var data events.StateChangedData
	require.NoError(t, json.Unmarshal(first.Data, &data))
	assert.Equal(t, "capturing", data.To)

	second := read(t, conn)
	assert.Equal(t, "turn.appended", second.Type)
}

func TestHub_Filters(t *testing.T) {
	h := NewHub()
	defer h.Close()
	srv := newServer(t, h)

	conn := dial(t, srv, "?types=pipeline.failed")
	waitClients(t, h, 1)

	h.Broadcast(events.New(events.EventCaptureChunk, "s", events.CaptureData{Bytes: 10}))
	h.Broadcast(events.New(events.EventStateChanged, "s", events.StateChangedData{}))
	h.Broadcast(events.New(events.EventPipelineFailed, "s", events.PipelineFailedData{Stage: "transcribe"}))

	assert.Equal(t, "pipeline.failed", read(t, conn).Type)
}

func TestHub_ChunksOptIn(t *testing.T) {
	h := NewHub()
	defer h.Close()
	srv := newServer(t, h)

	conn := dial(t, srv, "?chunks=1")
	waitClients(t, h, 1)

	h.Broadcast(events.New(events.EventCaptureChunk, "s", events.CaptureData{Bytes: 10}))
	assert.Equal(t, "capture.chunk", read(t, conn).Type)
}

func TestHub_RemovesClosedObservers(t *testing.T) {
	h := NewHub()
	defer h.Close()
	srv := newServer(t, h)

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	require.NoError(t, conn.Close())
	waitClients(t, h, 0)
}

func TestHub_DropsSlowObservers(t *testing.T) {
	h := NewHub(WithSendBuffer(1))
	defer h.Close()

	// Nothing drains this observer, so the second event overflows its queue.
	c := &client{remote: "slow", send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.Broadcast(events.New(events.EventStateChanged, "s", events.StateChangedData{}))
	assert.Equal(t, 1, h.Clients())
	h.Broadcast(events.New(events.EventStateChanged, "s", events.StateChangedData{}))
	assert.Equal(t, 0, h.Clients())

	<-c.send
	_, open := <-c.send
	assert.False(t, open)
}

func TestHub_CloseDisconnects(t *testing.T) {
	h := NewHub()
	srv := newServer(t, h)

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	h.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Equal(t, 0, h.Clients())
}
