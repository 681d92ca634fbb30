package kernelchan

import (
	"context"
	"errors"
)

// ErrClosed is returned by Receive/Send once the channel has been closed.
var ErrClosed = errors.New("kernelchan: channel closed")

// ChanConn is an in-memory Channel implementation for tests: messages
// pushed onto Inbound are what Receive returns, and messages passed to
// Send land on Outbound, with no framing or encoding involved since there
// is no real byte stream underneath.
type ChanConn struct {
	Inbound  chan []byte
	Outbound chan []byte
	closed   chan struct{}
}

// NewChanConn returns a ready-to-use in-memory Channel with the given
// inbound message backlog capacity.
func NewChanConn(capacity int) *ChanConn {
	return &ChanConn{
		Inbound:  make(chan []byte, capacity),
		Outbound: make(chan []byte, capacity),
		closed:   make(chan struct{}),
	}
}

func (c *ChanConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.Inbound:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ChanConn) Send(ctx context.Context, msg []byte) error {
	select {
	case c.Outbound <- msg:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ChanConn) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	return nil
}
