package ipc

import (
	"context"
	"sync"

	"nhooyr.io/websocket"
)

type wsConn interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
	Close(status websocket.StatusCode, reason string) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Ping(ctx context.Context) error
}

// Hub tracks live duplex channels so they can be counted and shut down.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*conn]struct{})}
}

// register tracks c until remove is called for it.
func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	metricConnections.Inc()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if ok {
		metricConnections.Dec()
		h.wg.Done()
	}
}

// Len returns the number of open channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every channel and waits until each has torn down.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.ws.Close(websocket.StatusGoingAway, reason)
		c.cancel()
	}
	h.wg.Wait()
}
