package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// readPump consumes client frames so pongs and close frames are processed.
// It answers {"type":"ping"} with a pong event and ignores everything else.
func (c *Client) readPump(m *Manager) {
	defer func() {
		send(m, m.unregister, c)
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("Monitor client %s read error: %v", c.ID, err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			m.logger.Debug("Ignoring malformed frame from %s: %v", c.ID, err)
			continue
		}

		if msg.Type == "ping" {
			pong, _ := json.Marshal(Event{Type: EventPong, SentAt: time.Now().UTC()})
			m.broadcastTo(c, pong)
		}
	}
}
