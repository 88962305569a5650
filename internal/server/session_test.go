package server

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Tyrowin/rkchat/internal/wire"
)

type sessionFixture struct {
	registry  *Registry
	session   *Session
	transport *fakeTransport
	peer      *fakeTransport
	hook      *test.Hook
}

// newSessionFixture registers a session's connection and one passive peer.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	logger, hook := newTestLogger()
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, logger)

	transport := newFakeTransport("10.0.0.1:5000")
	conn := NewConnection(transport, newTestConfig())
	registry.Add(conn)

	peer := newFakeTransport("10.0.0.2:6000")
	registry.Add(NewConnection(peer, newTestConfig()))

	return &sessionFixture{
		registry:  registry,
		session:   NewSession(conn, registry, broadcaster, logger),
		transport: transport,
		peer:      peer,
		hook:      hook,
	}
}

func (f *sessionFixture) start(t *testing.T) {
	t.Helper()
	go f.session.Run()
	t.Cleanup(func() {
		_ = f.session.Conn().Close()
		select {
		case <-f.session.Done():
		case <-time.After(2 * time.Second):
			t.Error("Session did not terminate")
		}
	})
}

// TestHandleChatUppercases verifies the chat transform.
func TestHandleChatUppercases(t *testing.T) {
	f := newSessionFixture(t)

	outbound, err := f.session.Handle("0:hello")
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if outbound != "someone said: HELLO" {
		t.Errorf("Expected upper-cased announcement, got %q", outbound)
	}
}

// TestHandleRegisterProducesNoBroadcast verifies username registration.
func TestHandleRegisterProducesNoBroadcast(t *testing.T) {
	f := newSessionFixture(t)

	outbound, err := f.session.Handle("1:alice")
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if outbound != "" {
		t.Errorf("Expected no outbound message, got %q", outbound)
	}
	if want, got := []string{"alice"}, f.registry.Usernames(); !reflect.DeepEqual(want, got) {
		t.Errorf("Expected usernames %v, got %v", want, got)
	}
	if name, ok := f.session.Conn().Username(); !ok || name != "alice" {
		t.Errorf("Expected connection username alice, got %q", name)
	}
	if !hasLog(f.hook, logrus.InfoLevel, "User added") {
		t.Error("Expected the new user list to be logged")
	}
}

// TestHandleRejections verifies message-level errors leave state unchanged.
func TestHandleRejections(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr error
	}{
		{raw: "", wantErr: ErrEmptyMessage},
		{raw: "9:x", wantErr: ErrUnknownTag},
		{raw: "0", wantErr: ErrMalformedMessage},
		{raw: "1", wantErr: ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			f := newSessionFixture(t)

			outbound, err := f.session.Handle(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if outbound != "" {
				t.Errorf("Expected no outbound message, got %q", outbound)
			}
			if f.registry.UserCount() != 0 || f.registry.Count() != 2 {
				t.Errorf("Expected registry unchanged, got %d users and %d connections",
					f.registry.UserCount(), f.registry.Count())
			}
		})
	}
}

// TestHandleRateLimited verifies that excess messages are dropped.
func TestHandleRateLimited(t *testing.T) {
	logger, _ := newTestLogger()
	cfg := newTestConfig()
	cfg.RateLimit.Burst = 1
	cfg.RateLimit.RefillInterval = time.Minute

	registry := NewRegistry()
	conn := NewConnection(newFakeTransport("10.0.0.1:1"), cfg)
	registry.Add(conn)
	session := NewSession(conn, registry, NewBroadcaster(registry, logger), logger)

	if _, err := session.Handle("0:first"); err != nil {
		t.Fatalf("Expected first message to pass, got %v", err)
	}
	if _, err := session.Handle("1:alice"); err != nil {
		t.Errorf("Expected registration to bypass the limiter, got %v", err)
	}
	if _, err := session.Handle("0:second"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if got := registry.UserCount(); got != 1 {
		t.Errorf("Expected alice to be registered, got %d users", got)
	}
}

// TestHandleChatTooLarge verifies that a chat whose announcement cannot be
// framed is rejected before any broadcast.
func TestHandleChatTooLarge(t *testing.T) {
	f := newSessionFixture(t)

	outbound, err := f.session.Handle("0:" + strings.Repeat("a", wire.MaxFrameSize-2))
	if !errors.Is(err, wire.ErrMessageTooLarge) {
		t.Fatalf("Expected ErrMessageTooLarge, got %v", err)
	}
	if outbound != "" {
		t.Errorf("Expected no outbound message, got %d bytes", len(outbound))
	}

	outbound, err = f.session.Handle("0:" + strings.Repeat("a", wire.MaxFrameSize-len("someone said: ")))
	if err != nil {
		t.Fatalf("Expected the largest fitting chat to pass, got %v", err)
	}
	if len(outbound) != wire.MaxFrameSize {
		t.Errorf("Expected a %d byte announcement, got %d", wire.MaxFrameSize, len(outbound))
	}
}

// TestSessionRunBroadcastsChat verifies that chat reaches every client,
// including the sender, while registration reaches nobody.
func TestSessionRunBroadcastsChat(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.transport.deliver("1:alice")
	f.transport.deliver("0:hi")

	waitFor(t, func() bool {
		return len(f.peer.messages()) == 1 && len(f.transport.messages()) == 1
	}, "both clients to receive the chat message")

	if got := f.peer.messages(); got[0] != "someone said: HI" {
		t.Errorf("Expected %q, got %q", "someone said: HI", got[0])
	}
	if got := f.transport.messages(); len(got) != 1 || got[0] != "someone said: HI" {
		t.Errorf("Expected sender to receive its own broadcast once, got %v", got)
	}
}

// TestSessionSurvivesBadMessages verifies that empty, malformed, and unknown
// messages are logged and the session keeps reading.
func TestSessionSurvivesBadMessages(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.transport.deliver("")
	f.transport.deliver("0")
	f.transport.deliver("9:x")
	f.transport.deliver("0:still here")

	waitFor(t, func() bool { return len(f.peer.messages()) == 1 }, "the session to keep processing")

	if got := f.peer.messages(); got[0] != "someone said: STILL HERE" {
		t.Errorf("Unexpected broadcast %q", got[0])
	}
	if state := f.session.State(); state == StateTerminated {
		t.Error("Session terminated on a message-level error")
	}
	if !hasLog(f.hook, logrus.ErrorLevel, "Malformed message") {
		t.Error("Expected malformed message to be logged")
	}
	if !hasLog(f.hook, logrus.ErrorLevel, "Could not handle message") {
		t.Error("Expected unknown tag to be logged")
	}
	if !hasLog(f.hook, logrus.DebugLevel, "Discarding empty message") {
		t.Error("Expected empty message to be traced")
	}
	if f.registry.UserCount() != 0 {
		t.Errorf("Expected no usernames, got %v", f.registry.Usernames())
	}
}

// TestSessionReadFailureDeregisters verifies cleanup when the client leaves.
func TestSessionReadFailureDeregisters(t *testing.T) {
	f := newSessionFixture(t)
	f.registry.AddUsername(nil, "operator")
	f.start(t)

	f.transport.deliver("1:bob")
	waitFor(t, func() bool { return f.registry.UserCount() == 2 }, "bob to be registered")

	f.transport.hangUp()

	select {
	case <-f.session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not terminate after the client hung up")
	}

	if f.session.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", f.session.State())
	}
	if f.registry.Contains(f.session.Conn()) {
		t.Error("Expected connection to be deregistered")
	}
	if want, got := []string{"operator"}, f.registry.Usernames(); !reflect.DeepEqual(want, got) {
		t.Errorf("Expected only the unowned name to remain, got %v", got)
	}
	if !f.transport.isClosed() {
		t.Error("Expected transport to be closed")
	}
}

// TestStateString covers the state names used in logs.
func TestStateString(t *testing.T) {
	states := map[State]string{
		StateConnected:   "connected",
		StateReading:     "reading",
		StateDispatching: "dispatching",
		StateTerminated:  "terminated",
		State(42):        "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
