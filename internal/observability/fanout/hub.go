// Package fanout broadcasts live Execution/NodeExecution timeline
// events to connected dashboard websocket clients, adapted from the
// teacher's approval-notification hub to subscribe by execution id
// instead of by username.
package fanout

import (
	"sync"

	"github.com/flowgrid/platform/internal/platform/logger"
)

// Message is one broadcast unit: the raw JSON payload for one execution's
// subscribers.
type Message struct {
	ExecutionID string
	Data        []byte
}

// Hub maintains active websocket connections keyed by execution id and
// broadcasts messages published for that execution to every subscriber.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	log *logger.Logger
}

// NewHub builds a Hub. Call Run in its own goroutine before serving.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		log:         log,
	}
}

// Run drives the hub's single-writer event loop until ctx-independent
// shutdown (callers stop it by abandoning the goroutine at process exit).
func (h *Hub) Run() {
	h.log.Info("fanout hub started")
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case m := <-h.broadcast:
			h.broadcastToExecution(m)
		}
	}
}

// Broadcast publishes a message into the hub's event loop.
func (h *Hub) Broadcast(m *Message) {
	h.broadcast <- m
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.executionID] = append(h.connections[c.executionID], c)
	h.log.Info("dashboard client registered", "execution_id", c.executionID, "count", len(h.connections[c.executionID]))
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[c.executionID]
	for i, existing := range clients {
		if existing == c {
			h.connections[c.executionID] = append(clients[:i], clients[i+1:]...)
			close(c.send)
			if len(h.connections[c.executionID]) == 0 {
				delete(h.connections, c.executionID)
			}
			break
		}
	}
}

func (h *Hub) broadcastToExecution(m *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.connections[m.ExecutionID]
	for _, c := range clients {
		select {
		case c.send <- m.Data:
		default:
			h.log.Warn("dashboard client send buffer full, dropping connection", "execution_id", m.ExecutionID)
			close(c.send)
		}
	}
}

// ConnectionCount reports the number of live websocket connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.connections {
		total += len(clients)
	}
	return total
}
