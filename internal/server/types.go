// Package server defines shared message types, sentinel errors, and utility
// helpers that are reused across connection, session, and broadcast logic.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
)

var (
	// ErrEmptyMessage marks a zero-length inbound message. It is discarded
	// without ending the session.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMalformedMessage marks a message too short to carry the tag prefix.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownTag marks a message whose tag is neither chat nor register.
	ErrUnknownTag = errors.New("unrecognized message tag")

	// ErrRateLimited marks a message dropped by the per-connection limiter.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrConnectionClosed is returned by Connection methods after Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrServerClosed is returned by Listen and Serve after Shutdown.
	ErrServerClosed = errors.New("server closed")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrConnectionClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
