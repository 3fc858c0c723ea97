package rooms

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Seednode/setbox/internal/protocol"
)

// Client is the outbound feed of one live connection. The transport drains
// Feed and writes each message to the wire.
type Client struct {
	ID string

	mu     sync.Mutex
	send   chan protocol.Message
	closed bool
}

func NewClient(buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}

	return &Client{
		ID:   uuid.NewString(),
		send: make(chan protocol.Message, buffer),
	}
}

// Feed is closed once the client is closed.
func (c *Client) Feed() <-chan protocol.Message {
	return c.send
}

// Deliver queues m without blocking. A client that cannot keep up is closed,
// and false is returned.
func (c *Client) Deliver(m protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- m:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
