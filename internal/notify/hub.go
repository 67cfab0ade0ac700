// Package notify pushes worker events to open pages over WebSocket. The only
// message the worker currently emits is content-updated; pages decide on
// their own whether to reload.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"offline_sync_worker/internal/obs"
)

const (
	EventContentUpdated = "content-updated"

	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

type Message struct {
	Type    string `json:"type"`
	Updated string `json:"updated,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	upgrader  websocket.Upgrader
	metrics   *obs.Metrics
	onMessage func(Message)
	closed    bool
}

type HubOptions struct {
	// AllowedHost restricts page connections to one Host header value.
	// Empty allows any, which tests rely on.
	AllowedHost string
	Metrics     *obs.Metrics
	// OnMessage receives messages pages send to the worker, e.g. the
	// skip-waiting instruction.
	OnMessage func(Message)
}

func NewHub(opts HubOptions) *Hub {
	hub := &Hub{
		clients:   make(map[*client]struct{}),
		metrics:   opts.Metrics,
		onMessage: opts.OnMessage,
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowedHost == "" {
				return true
			}
			return r.Host == opts.AllowedHost
		},
	}
	return hub
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetConnectedPages(count)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if h.onMessage != nil {
			h.onMessage(msg)
		}
	}
}

func (h *Hub) writePump(c *client) {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
	_ = c.conn.Close()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	_ = c.conn.Close()
	h.metrics.SetConnectedPages(count)
}

// Broadcast delivers one message to every connected page. Pages whose send
// buffer is full are disconnected rather than allowed to block the rest.
func (h *Hub) Broadcast(msg Message) {
	if h == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	stale := make([]*client, 0)
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.drop(c)
	}
}

// BroadcastContentUpdated emits the refresh notification with the given
// update time.
func (h *Hub) BroadcastContentUpdated(updated time.Time) {
	h.Broadcast(Message{
		Type:    EventContentUpdated,
		Updated: updated.UTC().Format(time.RFC3339),
	})
}

func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.metrics.SetConnectedPages(0)
}
