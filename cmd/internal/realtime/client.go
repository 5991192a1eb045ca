package realtime

import (
	"sync"

	"workfolio/cmd/internal/credential"
)

// Client is one connected socket.
//
// Send is never closed by the server so concurrent publishers cannot panic; done signals
// shutdown and Close is idempotent.
type Client struct {
	SessionID string
	Namespace credential.Namespace
	Send      chan Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(ns credential.Namespace, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsDefaultSendQueueSize
	}
	return &Client{
		SessionID: sessionID,
		Namespace: ns,
		Send:      make(chan Message, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// offer queues m without blocking; it reports whether m was queued.
func (c *Client) offer(m Message) bool {
	select {
	case <-c.Done():
		return false
	default:
	}
	select {
	case c.Send <- m:
		return true
	default:
		return false
	}
}
