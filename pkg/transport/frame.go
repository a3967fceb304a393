package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// DefaultMaxMessageSize matches the negotiated attribute MTU of the
// wireless link (256 bytes). Messages never span multiple frames; the
// characteristic protocol writes whole messages up to the MTU.
const DefaultMaxMessageSize = 256

// MessageConn delivers whole messages, mirroring characteristic writes:
// one write on the link surfaces as exactly one ReadMessage.
type MessageConn interface {
	// ReadMessage blocks for the next message.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one message.
	WriteMessage(data []byte) error

	// Close closes the underlying connection.
	Close() error
}

// streamConn adapts a byte stream (TCP) into a MessageConn using a
// 2-byte big-endian length prefix per message.
type streamConn struct {
	conn net.Conn
	max  int
}

// NewStreamConn frames a byte-stream connection into messages.
// max bounds message size in both directions (0 uses the default).
func NewStreamConn(conn net.Conn, max int) MessageConn {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &streamConn{conn: conn, max: max}
}

func (s *streamConn) ReadMessage() ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(header[:]))
	if length > s.max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, s.max)
	}

	msg := make([]byte, length)
	if _, err := io.ReadFull(s.conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortFrame, err)
	}
	return msg, nil
}

func (s *streamConn) WriteMessage(data []byte) error {
	if len(data) > s.max {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), s.max)
	}

	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)

	_, err := s.conn.Write(buf)
	return err
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}

// packetConn adapts a message-oriented net.Conn (such as the test
// bridge) into a MessageConn. Each Read yields one whole message.
type packetConn struct {
	conn net.Conn
	max  int
}

// NewPacketConn wraps a packet-oriented connection into messages.
// max bounds message size in both directions (0 uses the default).
func NewPacketConn(conn net.Conn, max int) MessageConn {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &packetConn{conn: conn, max: max}
}

func (p *packetConn) ReadMessage() ([]byte, error) {
	// One extra byte detects oversize packets without truncating
	// them silently.
	buf := make([]byte, p.max+1)
	n, err := p.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	if n > p.max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, p.max)
	}
	return buf[:n], nil
}

func (p *packetConn) WriteMessage(data []byte) error {
	if len(data) > p.max {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), p.max)
	}
	_, err := p.conn.Write(data)
	return err
}

func (p *packetConn) Close() error {
	return p.conn.Close()
}
