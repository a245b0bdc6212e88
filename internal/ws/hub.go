// Package ws pushes layer mutations to connected dashboard clients over
// WebSocket.
package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avelezdev/geolayers/internal/observability"
)

// Message is the envelope for every pushed mutation: source_data,
// layer_added, layer_removed, paint_property, source_added.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks connected clients and fans broadcast messages out to them. It
// satisfies the layer manager's Broadcaster seam.
type Hub struct {
	logger     *slog.Logger
	sendBuffer int

	register   chan *Client
	unregister chan *Client
	broadcast  chan Message

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(logger *slog.Logger, sendBuffer int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		logger:     logger,
		sendBuffer: sendBuffer,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		clients:    map[*Client]struct{}{},
	}
}

// Run owns the client set until the context ends, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			observability.SetWSClients(n)
			h.logger.Info("ws client connected", "clients", n)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			observability.SetWSClients(n)
			h.logger.Info("ws client disconnected", "clients", n)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Broadcast queues a message for every client. Never blocks the caller: a
// full hub queue drops the message.
func (h *Hub) Broadcast(msgType string, data any) {
	select {
	case h.broadcast <- Message{Type: msgType, Data: data}:
	default:
		observability.IncWSDropped()
		h.logger.Warn("broadcast queue full, dropping message", "type", msgType)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// fanOut delivers to each client, dropping clients whose send buffer is full
// rather than stalling everyone behind one slow reader.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			observability.IncWSDropped()
			close(c.send)
			delete(h.clients, c)
		}
	}
	observability.SetWSClients(len(h.clients))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	observability.SetWSClients(0)
	h.logger.Info("ws hub stopped")
}
