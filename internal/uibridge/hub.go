// Package uibridge exposes the agent to its local UI: a loopback HTTP
// API for status and break submission, and a websocket channel for
// pushed popup commands and notifications.
package uibridge

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gdshr/attendance-agent/internal/common/logger"
)

// hub fans messages out to every connected UI client. The UI process
// may restart independently of the agent, so connections come and go.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     *logger.Logger
}

func newHub(log *logger.Logger) *hub {
	return &hub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     log,
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	h.log.Debug("ui client connected", zap.Int("clients", len(h.clients)))
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// broadcast sends one JSON message to every client. Clients that fail
// the write are assumed gone and dropped.
func (h *hub) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to marshal ui message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("dropping dead ui client", zap.Error(err))
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// clientCount returns the number of connected UI clients.
func (h *hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll disconnects every client.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
