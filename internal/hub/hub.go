package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"guardian/internal/metrics"
)

const (
	TypeTelemetry = "telemetry"
	TypeAlert     = "alert"
	TypeSnapshot  = "snapshot"
)

// Message is the envelope pushed to dashboard clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of connected clients and fans messages out to them.
type Hub struct {
	log        *slog.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		log:        logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast requests until Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			metrics.WebsocketClients.Set(0)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebsocketClients.Set(float64(n))
			h.log.Info("websocket client registered", "remote", c.remote)
			if c.greeting != nil {
				c.send <- c.greeting
			}
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("websocket client unregistered", "remote", c.remote)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebsocketClients.Set(float64(n))
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("websocket client send buffer full, removing", "remote", c.remote)
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops Run and closes every client's send queue.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes and queues a message for every client. It drops the message
// when the hub is closed.
func (h *Hub) Publish(typ string, payload any) {
	b, err := json.Marshal(Message{Type: typ, Payload: payload})
	if err != nil {
		h.log.Error("encode websocket message", "err", err, "type", typ)
		return
	}
	select {
	case h.broadcast <- b:
	case <-h.quit:
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}
