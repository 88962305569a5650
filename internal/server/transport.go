// Package server abstracts the byte stream beneath a Connection so that raw
// TCP clients and WebSocket clients share one registry and one broadcast path.
package server

import (
	"bufio"
	"net"
	"time"

	"github.com/Tyrowin/rkchat/internal/wire"
)

// Transport moves whole text messages over one accepted stream.
type Transport interface {
	// ReadMessage blocks until a full message arrives or the stream fails.
	ReadMessage() (string, error)
	// WriteMessage sends one message. Callers serialize writes.
	WriteMessage(message string) error
	// SetWriteDeadline bounds subsequent writes.
	SetWriteDeadline(t time.Time) error
	Close() error
	// RemoteAddr returns the peer as host:port.
	RemoteAddr() string
}

// tcpTransport frames messages with the wire codec.
type tcpTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxSize int
}

// NewTCPTransport wraps an accepted stream connection. Inbound frames larger
// than maxSize bytes are treated as read failures.
func NewTCPTransport(conn net.Conn, maxSize int64) Transport {
	return &tcpTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		maxSize: int(maxSize),
	}
}

func (t *tcpTransport) ReadMessage() (string, error) {
	return wire.ReadString(t.reader, t.maxSize)
}

func (t *tcpTransport) WriteMessage(message string) error {
	return wire.WriteString(t.conn, message)
}

func (t *tcpTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
