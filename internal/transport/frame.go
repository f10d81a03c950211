// Package transport implements the exchange's wire framing (spec §6):
// a 4-byte little-endian length prefix followed by a UTF-8 JSON
// payload, over a net.Conn.
//
// Grounded on spec §6 directly; no framed-message library in the
// retrieval pack matches this exact length-prefix shape (the closest,
// a websocket-based market-data feed, frames at the TCP/websocket
// layer already), so this is pure stdlib `encoding/binary`/`net` — see
// SPEC_FULL.md §3.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// MaxFrameSize bounds a single payload to guard against a corrupt or
// hostile length prefix exhausting memory.
const MaxFrameSize = 16 * 1024 * 1024

// SendError reports a short write: the length actually written never
// matched the length declared by the frame header.
type SendError struct {
	Declared int
	Actual   int
}

func (e *SendError) Error() string {
	return fmt.Sprintf("transport: declared %d bytes but wrote %d", e.Declared, e.Actual)
}

// Conn wraps a net.Conn with frame-level Send/Receive.
type Conn struct {
	conn net.Conn
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

func (c *Conn) Close() error { return c.conn.Close() }

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one length-prefixed frame.
func (c *Conn) Send(payload []byte) error {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	n, err := c.conn.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return &SendError{Declared: len(payload), Actual: n}
	}
	return nil
}

// Receive reads one length-prefixed frame, returning io.EOF if the peer
// closed before any header byte arrived and io.ErrUnexpectedEOF if it
// closed partway through the header or payload.
func (c *Conn) Receive() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header)
	if size > MaxFrameSize {
		return nil, fmt.Errorf("transport: frame size %d exceeds limit %d", size, MaxFrameSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
