package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// Event types pushed to monitor clients.
const (
	EventTransition = "transition"
	EventRunSummary = "run_summary"
	EventPong       = "pong"
)

// Event is the JSON envelope of every message sent over the monitor socket.
type Event struct {
	Type       string                 `json:"type"`
	Transition *models.FileTransition `json:"transition,omitempty"`
	Summary    *models.RunSummary     `json:"summary,omitempty"`
	SentAt     time.Time              `json:"sent_at"`
}

// inbound is what clients may send; only {"type":"ping"} is answered.
type inbound struct {
	Type string `json:"type"`
}

// outbound is a message addressed to a single client.
type outbound struct {
	client  *Client
	message []byte
}

// Client is one connected monitor socket.
type Client struct {
	ID     string
	Socket *websocket.Conn
	Send   chan []byte
}

// Manager fans pipeline events out to every connected monitor client.
// It implements pipeline.Observer and pipeline.RunObserver.
type Manager struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan outbound
	done       chan struct{}
	logger     *utils.ETLLogger

	mu          sync.RWMutex
	count       int
	lastSummary []byte

	upgrader websocket.Upgrader
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// the monitor is read-only and served on an internal port
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}
