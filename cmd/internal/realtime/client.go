package realtime

import (
	"encoding/json"
	"errors"
	"sync"
)

var (
	// ErrClientClosed is returned by Deliver after Close.
	ErrClientClosed = errors.New("realtime: client closed")
	// ErrSlowConsumer is returned by Deliver when the send queue is full.
	ErrSlowConsumer = errors.New("realtime: send queue full")
)

// Client is the Handle for one connected websocket.
//
// The send queue is never closed, so concurrent Deliver calls cannot panic;
// done signals the socket goroutines to stop. Close is idempotent.
type Client struct {
	id     string
	UserID string
	Key    string

	send      chan json.RawMessage
	done      chan struct{}
	closeOnce sync.Once
}

var _ Handle = (*Client)(nil)

// NewClient constructs a Client with a bounded send queue.
func NewClient(id, userID, key string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		id:     id,
		UserID: userID,
		Key:    key,
		send:   make(chan json.RawMessage, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver enqueues payload without blocking.
func (c *Client) Deliver(payload json.RawMessage) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case <-c.done:
		return ErrClientClosed
	case c.send <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Outbound is drained by the socket writer.
func (c *Client) Outbound() <-chan json.RawMessage { return c.send }

// Done returns a channel that is closed when the client is shutting down.
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
