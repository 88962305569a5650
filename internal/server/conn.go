// Package server manages individual chat connections, pairing a transport
// with failure tracking, write serialization, and rate limiting.
package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/rkchat/internal/wire"
)

// Connection wraps one accepted transport stream. Its identity is the pointer
// itself; the remote address is fixed when the Connection is created.
type Connection struct {
	id           string
	addr         string
	transport    Transport
	writeTimeout time.Duration
	limiter      *rate.Limiter

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
	failed    atomic.Bool

	nameMu   sync.RWMutex
	username string
	hasName  bool
}

// NewConnection creates a Connection over t. Sends are bounded by
// cfg.WriteTimeout and inbound messages are throttled by cfg.RateLimit.
func NewConnection(t Transport, cfg *Config) *Connection {
	return &Connection{
		id:           uuid.NewString(),
		addr:         t.RemoteAddr(),
		transport:    t,
		writeTimeout: cfg.WriteTimeout,
		limiter:      newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
	}
}

// ID returns the session identifier used in logs.
func (c *Connection) ID() string { return c.id }

// Addr returns the remote endpoint as host:port.
func (c *Connection) Addr() string { return c.addr }

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool { return c.closed.Load() }

// Failed reports whether a Send on this connection has failed.
func (c *Connection) Failed() bool { return c.failed.Load() }

// Username returns the most recently registered username, if any.
func (c *Connection) Username() (string, bool) {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.username, c.hasName
}

func (c *Connection) setUsername(name string) {
	c.nameMu.Lock()
	c.username = name
	c.hasName = true
	c.nameMu.Unlock()
}

// allow consumes one token from the inbound rate limiter.
func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Receive blocks until the next full message arrives or the transport fails.
func (c *Connection) Receive() (string, error) {
	if c.closed.Load() {
		return "", ErrConnectionClosed
	}
	return c.transport.ReadMessage()
}

// Send attempts one delivery bounded by the write timeout. On a transport
// failure the connection is marked failed and its transport is closed so the
// owning session stops reading; the Registry is left untouched. A message that
// cannot be framed is refused before anything is written and leaves the
// connection open.
func (c *Connection) Send(message string) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	err := c.write(message)
	c.writeMu.Unlock()

	if errors.Is(err, wire.ErrMessageTooLarge) {
		return fmt.Errorf("send to %s: %w", c.addr, err)
	}
	if err != nil {
		c.failed.Store(true)
		_ = c.Close()
		return fmt.Errorf("send to %s: %w", c.addr, err)
	}
	return nil
}

func (c *Connection) write(message string) error {
	if c.writeTimeout > 0 {
		if err := c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.transport.WriteMessage(message)
}

// Close releases the transport. Repeated calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}
