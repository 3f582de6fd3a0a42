package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"levelbot/internal/execution"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the frame sent to stream clients.
type envelope struct {
	Seq     int64           `json:"seq"`
	TS      string          `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
	Event   execution.Event `json:"event"`
}

// Hub fans executor events out to WebSocket clients. New clients first
// receive the last few events (replay) so they start with context.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	recent  []envelope
	keep    int
	seq     int64
}

// NewHub creates a hub that replays up to keep recent events to new clients.
func NewHub(keep int) *Hub {
	if keep <= 0 {
		keep = 100
	}
	return &Hub{
		clients: make(map[*client]bool),
		keep:    keep,
	}
}

// Run broadcasts every event from events until ctx is cancelled or the
// channel is closed.
func (h *Hub) Run(ctx context.Context, events <-chan execution.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Broadcast sends ev to every client whose symbol filter accepts it.
// Slow clients drop frames instead of blocking the hub.
func (h *Hub) Broadcast(ev execution.Event) {
	h.mu.Lock()
	h.seq++
	env := envelope{Seq: h.seq, TS: time.Now().UTC().Format(time.RFC3339Nano), Event: ev}
	h.recent = append(h.recent, env)
	if len(h.recent) > h.keep {
		h.recent = h.recent[len(h.recent)-h.keep:]
	}
	h.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[api] marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.accepts(ev.Symbol) {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers a client. The optional
// ?symbols=A,B query restricts the stream to those symbols.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256), hub: h}
	if q := r.URL.Query().Get("symbols"); q != "" {
		c.symbols = make(map[string]bool)
		for _, s := range strings.Split(q, ",") {
			c.symbols[strings.ToUpper(strings.TrimSpace(s))] = true
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	for _, env := range h.recent {
		if !c.accepts(env.Event.Symbol) {
			continue
		}
		env.Initial = true
		if data, err := json.Marshal(env); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[api] ws client connected (%d total)", count)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// client is a single WebSocket peer.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	symbols map[string]bool // nil accepts every symbol
}

func (c *client) accepts(symbol string) bool {
	return c.symbols == nil || c.symbols[symbol]
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services pings and detects disconnects; clients send nothing.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		log.Println("[api] ws client disconnected")
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
