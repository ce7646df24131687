// Package websocket fans out domain notifications to connected WebSocket clients.
package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type envelope struct {
	topic string
	data  []byte
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("WebSocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.Wants(msg.topic) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer; drop it rather than stall everyone else.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every client subscribed to topic. Clients
// without subscriptions receive everything.
func (h *Hub) Broadcast(topic string, message []byte) {
	select {
	case h.broadcast <- envelope{topic: topic, data: message}:
	default:
		h.log.Warn().Str("topic", topic).Msg("Broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one WebSocket connection's view of the hub.
type Client struct {
	hub  *Hub
	send chan []byte

	// replies carries responses to client commands. The hub never closes it,
	// so the read side can write to it after the client was dropped.
	replies chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:     hub,
		send:    make(chan []byte, 256),
		replies: make(chan []byte, 16),
		topics:  make(map[string]bool),
	}
}

// Send returns the channel of messages queued for the client.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Replies returns the channel of command responses queued for the client.
func (c *Client) Replies() <-chan []byte {
	return c.replies
}

// Reply queues a command response. It reports false when the queue is full.
func (c *Client) Reply(data []byte) bool {
	select {
	case c.replies <- data:
		return true
	default:
		return false
	}
}

// Subscribe restricts the client to the given topics (event IDs, series
// hashes or feed IDs), in addition to any earlier subscriptions.
func (c *Client) Subscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.topics[t] = true
	}
}

// Unsubscribe drops topics. A client left with no topics receives everything again.
func (c *Client) Unsubscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

// Wants reports whether a message on topic should be delivered to the client.
func (c *Client) Wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.topics) == 0 || topic == "" || c.topics[topic]
}
