// Package kernelchan abstracts the byte-stream connection to the kernel
// minifilter: a Channel delivers whole, length-framed messages and can be
// written to on the same connection, independent of whether the transport
// is a real OS pipe or an in-memory stand-in for tests.
package kernelchan

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// maxMessageSize bounds a single framed message, guarding against a
// corrupt length prefix turning into an unbounded allocation.
const maxMessageSize = 1 << 20

// ErrMessageTooLarge is returned when a length prefix exceeds
// maxMessageSize.
type ErrMessageTooLarge struct {
	Size uint32
}

func (e ErrMessageTooLarge) Error() string {
	return fmt.Sprintf("kernelchan: message size %d exceeds limit %d", e.Size, maxMessageSize)
}

// Channel is the collaborator contract the event loop depends on: receive
// the next framed message (blocking until one arrives or ctx is done), and
// send a framed reply (an acknowledgement or a cleaner directive) with a
// bounded wait.
type Channel interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// connChannel adapts any net.Conn-like byte stream (a real named pipe
// dialed as a net.Conn on platforms that expose one, or any other
// io.ReadWriteCloser) into a Channel, length-prefixing frames with a
// little-endian u32.
type connChannel struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	// wmu keeps a frame's length prefix and body adjacent on the wire
	// when Sends overlap.
	wmu sync.Mutex
}

// NewConnChannel wraps conn as a length-framed Channel.
func NewConnChannel(conn io.ReadWriteCloser) Channel {
	return &connChannel{conn: conn, reader: bufio.NewReader(conn)}
}

// Dial connects to a kernel channel exposed as a network endpoint (a TCP
// or Unix-domain proxy in front of the real minifilter port), the
// portable stand-in for the minifilter's named pipe off Windows.
func Dial(ctx context.Context, network, address string) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewConnChannel(conn), nil
}

func (c *connChannel) Receive(ctx context.Context) ([]byte, error) {
	type result struct {
		msg []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.readFrame()
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *connChannel) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.reader, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	if size > maxMessageSize {
		return nil, ErrMessageTooLarge{Size: size}
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(c.reader, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *connChannel) Send(ctx context.Context, msg []byte) error {
	if len(msg) > maxMessageSize {
		return ErrMessageTooLarge{Size: uint32(len(msg))}
	}

	done := make(chan error, 1)
	go func() {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg)))
		if _, err := c.conn.Write(lenBuf[:]); err != nil {
			done <- err
			return
		}
		_, err := c.conn.Write(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connChannel) Close() error {
	return c.conn.Close()
}
