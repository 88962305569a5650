// Package server runs the per-connection control loop that reads tagged
// messages, updates the registry, and triggers broadcasts.
package server

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/rkchat/internal/wire"
)

// State is a session's position in its read/dispatch cycle.
type State int32

const (
	StateConnected State = iota
	StateReading
	StateDispatching
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateDispatching:
		return "dispatching"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session owns the read loop of one registered Connection.
type Session struct {
	conn        *Connection
	registry    *Registry
	broadcaster *Broadcaster
	logger      *logrus.Entry
	state       atomic.Int32
	done        chan struct{}
}

// NewSession creates a session for a connection that is already registered.
func NewSession(conn *Connection, registry *Registry, broadcaster *Broadcaster, logger logrus.FieldLogger) *Session {
	return &Session{
		conn:        conn,
		registry:    registry,
		broadcaster: broadcaster,
		logger: logger.WithFields(logrus.Fields{
			"conn":    conn.Addr(),
			"session": conn.ID(),
		}),
		done: make(chan struct{}),
	}
}

// Conn returns the session's connection.
func (s *Session) Conn() *Connection { return s.conn }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has terminated and cleaned up.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setState(state State) { s.state.Store(int32(state)) }

// Run reads and dispatches messages until the connection fails or closes,
// then deregisters the connection and any usernames it registered.
func (s *Session) Run() {
	defer s.terminate()

	for {
		s.setState(StateReading)
		raw, err := s.conn.Receive()
		if err != nil {
			s.logReadError(err)
			return
		}

		s.setState(StateDispatching)
		outbound, err := s.Handle(raw)
		if err != nil {
			s.logHandleError(raw, err)
			continue
		}

		if outbound != "" {
			s.broadcaster.Broadcast(outbound)
		}
	}
}

// Handle interprets one inbound message, applies any registry change, and
// returns the outbound text to broadcast. An empty result means nothing is
// broadcast. Errors are message-level and never end the session. Only chat
// messages are rate limited, and a chat whose announcement would not fit in a
// frame is rejected with wire.ErrMessageTooLarge.
func (s *Session) Handle(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyMessage
	}

	msg, err := ParseMessage(raw)
	if err != nil {
		return "", err
	}

	switch msg.Tag {
	case TagChat:
		if !s.conn.allow() {
			return "", ErrRateLimited
		}
		announcement := ChatAnnouncement(msg.Payload)
		if n := wire.EncodedLen(announcement); n > wire.MaxFrameSize {
			return "", fmt.Errorf("%w: announcement is %d bytes", wire.ErrMessageTooLarge, n)
		}
		s.logger.WithField("message", msg.Payload).Info("Received chat message")
		return announcement, nil

	case TagRegister:
		s.registry.AddUsername(s.conn, msg.Payload)
		s.logger.WithFields(logrus.Fields{
			"username":   msg.Payload,
			"user_count": s.registry.UserCount(),
			"users":      s.registry.Usernames(),
		}).Info("User added")
		return "", nil
	}

	return "", ErrUnknownTag
}

func (s *Session) logReadError(err error) {
	if isExpectedCloseError(err) {
		s.logger.WithError(err).Info("Client connection closed")
		return
	}
	s.logger.WithError(err).Warn("There was a problem while reading a message from the client")
}

func (s *Session) logHandleError(raw string, err error) {
	entry := s.logger.WithError(err)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		s.logger.Debug("Discarding empty message")
	case errors.Is(err, ErrRateLimited):
		entry.Warn("Rate limit exceeded; discarding message")
	case errors.Is(err, wire.ErrMessageTooLarge):
		entry.WithField("size", len(raw)).Error("Chat message too large to broadcast")
	case errors.Is(err, ErrMalformedMessage):
		entry.WithField("raw", raw).Error("Malformed message")
	default:
		entry.WithField("raw", raw).Error("Could not handle message")
	}
}

func (s *Session) terminate() {
	present, names := s.registry.Deregister(s.conn)
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.WithError(err).Warn("Error closing connection")
	}
	s.setState(StateTerminated)

	if present {
		s.logger.WithFields(logrus.Fields{
			"clients":       s.registry.Count(),
			"removed_users": names,
			"user_count":    s.registry.UserCount(),
		}).Info("Client unregistered")
	}
	close(s.done)
}
