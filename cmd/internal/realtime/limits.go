package realtime

import "time"

const (
	// Max bytes per inbound frame. Clients only ever send hello.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frames allowed per connection per window.
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)
