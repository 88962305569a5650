package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeTransport is an in-memory Transport. Messages pushed with deliver are
// returned by ReadMessage; writes are recorded unless writeErr is set.
type fakeTransport struct {
	addr  string
	inbox chan string

	mu       sync.Mutex
	sent     []string
	writeErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{
		addr:   addr,
		inbox:  make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) deliver(message string) { f.inbox <- message }

// hangUp makes the next ReadMessage report an orderly close.
func (f *fakeTransport) hangUp() { close(f.inbox) }

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) ReadMessage() (string, error) {
	select {
	case msg, ok := <-f.inbox:
		if !ok {
			return "", io.EOF
		}
		return msg, nil
	case <-f.closed:
		return "", net.ErrClosed
	}
}

func (f *fakeTransport) WriteMessage(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.isClosed() {
		return net.ErrClosed
	}
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return f.addr }

var errWriteFailed = errors.New("write: simulated transport failure")

func newTestConfig() *Config {
	cfg := NewConfig()
	cfg.WriteTimeout = 200 * time.Millisecond
	cfg.RateLimit.Burst = 1000
	return cfg
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// hasLog reports whether hook captured an entry at level whose message is msg.
func hasLog(hook *test.Hook, level logrus.Level, msg string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Level == level && entry.Message == msg {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
