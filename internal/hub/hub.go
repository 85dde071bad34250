// Package hub fans world-state events out to live subscriber connections.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Conn is a subscriber connection. Implementations must not block in Send.
type Conn interface {
	// IsOpen reports whether the connection can accept a message now.
	IsOpen() bool
	// Send queues one serialized message.
	Send(msg []byte) error
}

// Hub holds the set of registered connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{conns: make(map[Conn]struct{})}
}

// Register adds c and immediately sends it the initial message. The
// connection stays registered even if the initial send fails; its owner
// unregisters it on close.
func (h *Hub) Register(c Conn, initial any) error {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	msg, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("marshal initial state: %w", err)
	}
	if !c.IsOpen() {
		return nil
	}
	if err := c.Send(msg); err != nil {
		return fmt.Errorf("send initial state: %w", err)
	}
	return nil
}

// Unregister removes c. Returns false if it was not registered.
func (h *Hub) Unregister(c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return false
	}
	delete(h.conns, c)
	return true
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish serializes event once and sends the same bytes to every open
// connection. Connections that are not open are skipped and stay
// registered. Returns the number of connections the message was handed to.
func (h *Hub) Publish(event any) (int, error) {
	msg, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	// Collect connections first so sends happen outside the lock.
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if !c.IsOpen() {
			continue
		}
		if err := c.Send(msg); err != nil {
			slog.Debug("broadcast send failed", "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}
