package websocket

import (
	"net/http"

	"github.com/google/uuid"
)

// HandleConnections upgrades the request and registers a monitor client.
func (m *Manager) HandleConnections(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		m.logger.Warn("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Socket: conn,
		Send:   make(chan []byte, sendBufferSize),
	}

	m.logger.Info("Monitor connection from %s (client %s)", r.RemoteAddr, client.ID)

	if !send(m, m.register, client) {
		conn.Close()
		return
	}

	go client.writePump(m)
	go client.readPump(m)
}
