// Package monitor streams client events to WebSocket observers, so a
// second terminal or a dashboard can follow a session live.
package monitor

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
)

// Default connection constants.
const (
	DefaultWriteWait  = 10 * time.Second
	DefaultSendBuffer = 64
	DefaultPingPeriod = 30 * time.Second

	maxReadSize = 1024
)

// Option configures the Hub.
type Option func(*Hub)

// WithSendBuffer sets how many events may queue per observer before it is
// considered too slow and disconnected.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPingPeriod sets the keepalive interval.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// Hub fans events out to connected observers.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int
	writeWait  time.Duration
	pingPeriod time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	detach  []func()
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
	filter map[events.EventType]bool
	chunks bool
	once   sync.Once
}

// wants reports whether the observer subscribed to t. Capture chunks are
// high-rate and must be requested explicitly.
func (c *client) wants(t events.EventType) bool {
	if t == events.EventCaptureChunk && !c.chunks {
		return false
	}
	return len(c.filter) == 0 || c.filter[t]
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxReadSize,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer: DefaultSendBuffer,
		writeWait:  DefaultWriteWait,
		pingPeriod: DefaultPingPeriod,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach subscribes the hub to every event on bus until Close.
func (h *Hub) Attach(bus *events.EventBus) {
	unsubscribe := bus.SubscribeAll(h.Broadcast)
	h.mu.Lock()
	h.detach = append(h.detach, unsubscribe)
	h.mu.Unlock()
}

// Broadcast sends e to every interested observer. Observers whose queue is
// full are dropped rather than blocking the bus.
func (h *Hub) Broadcast(e *events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Warn("Monitor failed to encode event", "type", string(e.Type), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(e.Type) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			logger.Warn("Monitor observer too slow, disconnecting", "remote", c.remote)
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events as JSON text frames.
// The optional types query parameter is a comma-separated list of event
// types; chunks=1 adds capture chunks.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("Monitor upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, h.sendBuffer),
		filter: parseTypes(r.URL.Query().Get("types")),
		chunks: r.URL.Query().Get("chunks") == "1",
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger.Debug("Monitor observer connected", "remote", c.remote)

	go h.writePump(c)
	h.readPump(c)
}

func parseTypes(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	out := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[events.EventType(t)] = true
		}
	}
	return out
}

// readPump discards inbound frames and unregisters the observer when the
// connection ends.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxReadSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, unsubscribe := range h.detach {
		unsubscribe()
	}
	h.detach = nil
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
