// Package websocket streams pipeline progress to monitor clients: every file
// stage transition and the summary of each finished run.
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// NewManager creates a hub. Call Run before accepting connections.
func NewManager(logger *utils.ETLLogger) *Manager {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Manager{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan outbound),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader:   newUpgrader(),
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then disconnects every client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for client := range m.clients {
				m.drop(client)
			}
			return

		case client := <-m.register:
			// Новый клиент сразу получает итог последнего запуска
			m.clients[client] = struct{}{}
			m.setCount(len(m.clients))
			m.logger.Debug("Monitor client %s connected", client.ID)

			if last := m.LastSummary(); last != nil {
				m.deliver(client, last)
			}

		case client := <-m.unregister:
			if _, ok := m.clients[client]; ok {
				m.drop(client)
				m.logger.Debug("Monitor client %s disconnected", client.ID)
			}

		case message := <-m.broadcast:
			// Рассылаем событие всем подключённым клиентам
			for client := range m.clients {
				m.deliver(client, message)
			}

		case out := <-m.direct:
			if _, ok := m.clients[out.client]; ok {
				m.deliver(out.client, out.message)
			}
		}
	}
}

// send hands req to the Run loop unless it has stopped.
func send[T any](m *Manager, ch chan T, req T) bool {
	select {
	case ch <- req:
		return true
	case <-m.done:
		return false
	}
}

// broadcastTo queues message for a single client.
func (m *Manager) broadcastTo(client *Client, message []byte) {
	send(m, m.direct, outbound{client: client, message: message})
}

// deliver queues message for client, dropping clients that cannot keep up.
func (m *Manager) deliver(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		m.logger.Warn("Monitor client %s is too slow, disconnecting", client.ID)
		m.drop(client)
	}
}

func (m *Manager) drop(client *Client) {
	delete(m.clients, client)
	close(client.Send)
	m.setCount(len(m.clients))
}

func (m *Manager) setCount(n int) {
	m.mu.Lock()
	m.count = n
	m.mu.Unlock()
}

// ClientCount returns the number of registered clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// LastSummary returns the encoded event of the most recent finished run,
// or nil before the first one.
func (m *Manager) LastSummary() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSummary
}

// OnTransition broadcasts a file stage change.
func (m *Manager) OnTransition(t models.FileTransition) {
	m.publish(Event{Type: EventTransition, Transition: &t})
}

// OnRunComplete broadcasts the run summary and keeps it for late joiners.
func (m *Manager) OnRunComplete(s *models.RunSummary) {
	data := m.publish(Event{Type: EventRunSummary, Summary: s})
	if data != nil {
		m.mu.Lock()
		m.lastSummary = data
		m.mu.Unlock()
	}
}

// publish encodes ev and queues it without blocking the pipeline.
func (m *Manager) publish(ev Event) []byte {
	ev.SentAt = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error("Failed to encode %s event: %v", ev.Type, err)
		return nil
	}

	select {
	case m.broadcast <- data:
	default:
		m.logger.Warn("Monitor broadcast queue full, dropping %s event", ev.Type)
	}
	return data
}
