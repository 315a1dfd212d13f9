// Package hub tracks live websocket connections per game session and fans
// turn results out to them.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dungeonmaster/pkg/logx"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound message size.
	maxMessageSize = 8 * 1024
	// Outbound queue depth per connection.
	sendBuffer = 64
)

var (
	// ErrConnClosed is returned when sending to a removed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrQueueFull is returned when a connection is not draining its queue.
	ErrQueueFull = errors.New("send queue full")
)

// Conn is one registered websocket connection bound to a session.
type Conn struct {
	ID        string
	SessionID string

	ws     *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// Hub is a concurrent registry of connections keyed by session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Conn
	upgrader websocket.Upgrader
	logger   *logx.Logger
}

// New creates an empty hub. Origins are not checked; authentication is out of scope.
func New() *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logx.NewLogger("hub"),
	}
}

// Accept upgrades the request and registers the connection under sessionID.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, sessionID string) (*Conn, error) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return h.Add(sessionID, ws), nil
}

// Add registers ws under sessionID and starts its writer.
func (h *Hub) Add(sessionID string, ws *websocket.Conn) *Conn {
	c := &Conn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	conns, ok := h.sessions[sessionID]
	if !ok {
		conns = make(map[string]*Conn)
		h.sessions[sessionID] = conns
	}
	conns[c.ID] = c
	h.mu.Unlock()

	h.logger.Info("connection %s joined session %s", c.ID, sessionID)
	go c.writePump(h.logger)
	return c
}

// Remove unregisters c and closes it. Removing twice is a no-op.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	if conns, ok := h.sessions[c.SessionID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.sessions, c.SessionID)
		}
	}
	h.mu.Unlock()

	if c.shutdown() {
		h.logger.Info("connection %s left session %s", c.ID, c.SessionID)
	}
}

// Send queues v as JSON for one connection.
func (h *Hub) Send(c *Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.enqueue(data)
}

// Broadcast queues v for every connection on sessionID and returns how many accepted it.
// A connection whose queue is full is dropped.
func (h *Hub) Broadcast(sessionID string, v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("broadcast to %s: encode: %v", sessionID, err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.sessions[sessionID]))
	for _, c := range h.sessions[sessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.enqueue(data); err != nil {
			h.logger.Warn("dropping connection %s: %v", c.ID, err)
			h.Remove(c)
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of live connections on sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close removes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Conn
	for _, conns := range h.sessions {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	h.sessions = make(map[string]map[string]*Conn)
	h.mu.Unlock()

	for _, c := range all {
		c.shutdown()
	}
}

// ReadLoop delivers inbound text messages to handle until the peer goes away,
// then removes the connection. It blocks; run it on the request goroutine.
func (h *Hub) ReadLoop(c *Conn, handle func(c *Conn, message []byte)) {
	defer h.Remove(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("connection %s read error: %v", c.ID, err)
			}
			return
		}
		handle(c, message)
	}
}

func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// shutdown closes the send queue once; the writer then sends a close frame.
func (c *Conn) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *Conn) writePump(logger *logx.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("connection %s write failed: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("connection %s ping failed: %v", c.ID, err)
				return
			}
		}
	}
}
