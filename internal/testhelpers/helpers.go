// Package testhelpers provides common utilities and helper functions for testing the RKchat server.
//
// It contains reusable clients for the framed TCP protocol and the WebSocket
// bridge, plus HTTP assertions shared across package tests.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/rkchat/internal/wire"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// DialTCP connects a framed chat client to addr, failing the test on error.
// The connection is closed when the test ends.
func DialTCP(t *testing.T, addr string) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendMessage writes one framed message.
func SendMessage(t *testing.T, conn net.Conn, message string) {
	t.Helper()

	if err := conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set write deadline: %v", err)
	}
	if err := wire.WriteString(conn, message); err != nil {
		t.Fatalf("Failed to send %q: %v", message, err)
	}
}

// ReceiveMessage reads one framed message within timeout.
func ReceiveMessage(conn net.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	return wire.ReadString(conn, 0)
}

// ExpectMessage reads one framed message and fails the test unless it equals want.
func ExpectMessage(t *testing.T, conn net.Conn, want string) {
	t.Helper()

	got, err := ReceiveMessage(conn, DefaultTimeout)
	if err != nil {
		t.Fatalf("Expected message %q, got error: %v", want, err)
	}
	if got != want {
		t.Errorf("Expected message %q, got %q", want, got)
	}
}

// ExpectNoMessage fails the test if a frame arrives within timeout.
func ExpectNoMessage(t *testing.T, conn net.Conn, timeout time.Duration) {
	t.Helper()

	msg, err := ReceiveMessage(conn, timeout)
	if err == nil {
		t.Errorf("Expected no message, got %q", msg)
		return
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

// Eventually polls cond until it returns true or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf(format, args...)
	}
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
