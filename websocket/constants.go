package websocket

import (
	"time"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the client.
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pings and control frames.
	maxMessageSize = 4 * 1024

	// Per-client outbound queue length.
	sendBufferSize = 256

	// Events queued for the hub before new ones are dropped.
	broadcastBufferSize = 1024
)
