package realtime

import (
	"sync"

	"github.com/tutorlink/session-core/internal/domain"
)

const defaultSendQueueSize = 64

// Client represents one connected websocket session.
//
// The send channel is never closed; done signals shutdown so concurrent
// emitters cannot panic on a closed channel.
type Client struct {
	Principal domain.Principal
	SessionID string

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(principal domain.Principal, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Client{
		Principal: principal,
		SessionID: sessionID,
		send:      make(chan Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Enqueue appends env to the send queue without blocking. It reports false
// when the client is closed or the queue is full.
func (c *Client) Enqueue(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Outbound is drained by the connection writer.
func (c *Client) Outbound() <-chan Envelope {
	return c.send
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
