package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// writePump sends queued events and keeps the connection alive with pings.
// It exits when the manager closes Send or a write fails.
func (c *Client) writePump(m *Manager) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one event per frame so clients can parse each as JSON
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				m.logger.Debug("Monitor client %s write error: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
