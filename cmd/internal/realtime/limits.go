package realtime

import "time"

const (
	// Max bytes per inbound websocket frame. Clients only send control traffic.
	maxFrameBytes = 4 << 10

	// Handshake session ids live this long unless consumed.
	defaultHandshakeTTL = 5 * time.Minute
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frames per second per socket, and burst.
	rateLimitPerSecond = 5
	rateLimitBurst     = 20
)
