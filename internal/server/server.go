// Package server owns the TCP listener, the accept loop, and the lifecycle of
// every chat session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts stream connections and runs one Session per connection, all
// sharing a single Registry and Broadcaster.
type Server struct {
	cfg         *Config
	logger      *logrus.Logger
	registry    *Registry
	broadcaster *Broadcaster

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	wg       sync.WaitGroup
}

// NewServer creates a Server from cfg. A nil cfg uses defaults and a nil
// logger uses the logrus standard logger.
func NewServer(cfg *Config, logger *logrus.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.Sanitize()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	registry := NewRegistry()
	return &Server{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, logger),
	}
}

// Config returns the server's sanitized configuration.
func (s *Server) Config() *Config { return s.cfg }

// Registry returns the shared connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// Broadcaster returns the shared broadcaster.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Logger returns the server's logger.
func (s *Server) Logger() *logrus.Logger { return s.logger }

// Listen binds the configured TCP address. A bind failure is fatal to the
// process and is returned to the caller.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return ErrServerClosed
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("could not create socket on %s: %w", s.cfg.Port, err)
	}
	s.listener = ln
	s.logger.WithField("addr", ln.Addr().String()).Info("Listening for chat clients")
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until Shutdown, when it returns nil, or until a
// non-temporary accept failure, which it returns.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.WithError(err).WithField("retry_in", backoff).Warn("Accept failed; retrying")
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		backoff = 0

		s.Attach(NewTCPTransport(conn, s.cfg.MaxMessageSize))
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	current *= 2
	if current > maxAcceptBackoff {
		current = maxAcceptBackoff
	}
	return current
}

// Attach registers a connection over t and starts its session. After
// Shutdown the transport is closed immediately and nil is returned.
func (s *Server) Attach(t Transport) *Session {
	conn := NewConnection(t, s.cfg)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.registry.Add(conn)
	s.wg.Add(1)
	s.mu.Unlock()

	session := NewSession(conn, s.registry, s.broadcaster, s.logger)
	s.logger.WithFields(logrus.Fields{
		"conn":    conn.Addr(),
		"session": conn.ID(),
		"clients": s.registry.Count(),
	}).Info("Client connected")

	go func() {
		defer s.wg.Done()
		session.Run()
	}()
	return session
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes every registered connection, and waits for
// their sessions to finish. It returns context.DeadlineExceeded if sessions
// are still running when timeout elapses.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("Initiating server shutdown...")

	s.mu.Lock()
	s.closing = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.WithError(err).Warn("Error closing listener")
		}
	}

	clients := s.registry.Snapshot()
	for _, client := range clients {
		if err := client.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.WithError(err).WithField("conn", client.Addr()).Warn("Error closing client connection")
		}
	}
	s.logger.WithField("clients", len(clients)).Info("Closed client connections")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Server shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("Server shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
