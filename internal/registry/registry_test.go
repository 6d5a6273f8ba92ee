package registry

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/worldbroker/internal/telemetry"
)

func testSink() telemetry.Sink { return telemetry.NewSlogSink(nil) }

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())
	tr := newFakeTransport()

	session, err := r.Add(context.Background(), "W1", "tok", tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.Get("W1")
	if !ok || got != session {
		t.Fatalf("expected to get back the registered session")
	}
}

func TestRegistry_AddRejectsInvalidCredentials(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())
	tr := newFakeTransport()

	_, err := r.Add(context.Background(), "W1", "reject-me", tr)
	if err != ErrRejected {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if _, ok := r.Get("W1"); ok {
		t.Fatalf("rejected handshake must not register a session")
	}
}

func TestRegistry_Supersession(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()

	s1, err := r.Add(context.Background(), "W1", "tok1", tr1)
	if err != nil {
		t.Fatalf("add 1: %v", err)
	}
	s2, err := r.Add(context.Background(), "W1", "tok2", tr2)
	if err != nil {
		t.Fatalf("add 2: %v", err)
	}

	got, ok := r.Get("W1")
	if !ok || got != s2 {
		t.Fatalf("expected second session to be current")
	}
	if !s1.Closed() {
		t.Fatalf("expected superseded session to be closed")
	}
	if tr1.closeCode != CloseSuperseded {
		t.Fatalf("expected supersession close code, got %v", tr1.closeCode)
	}
}

func TestRegistry_RemoveIsIdempotentAndGuardsIdentity(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()

	s1, _ := r.Add(context.Background(), "W1", "tok1", tr1)
	s2, _ := r.Add(context.Background(), "W1", "tok2", tr2)

	// A late remove from the superseded session must not evict its successor.
	r.Remove("W1", s1)
	got, ok := r.Get("W1")
	if !ok || got != s2 {
		t.Fatalf("stale remove must not affect the current session")
	}

	// Removing the current session is idempotent.
	r.Remove("W1", s2)
	r.Remove("W1", s2)
	if _, ok := r.Get("W1"); ok {
		t.Fatalf("expected session to be gone after remove")
	}
}

func TestRegistry_SweepInactive(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())
	tr := newFakeTransport()

	session, _ := r.Add(context.Background(), "W1", "tok", tr)
	session.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

	r.SweepInactive(time.Minute)

	if !session.Closed() {
		t.Fatalf("expected stale session to be closed by sweep")
	}
	if _, ok := r.Get("W1"); ok {
		t.Fatalf("expected stale session to be removed by sweep")
	}
}

func TestRegistry_SweepInactiveSparesLiveSessions(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())
	tr := newFakeTransport()

	session, _ := r.Add(context.Background(), "W1", "tok", tr)
	r.SweepInactive(time.Minute)

	if session.Closed() {
		t.Fatalf("sweep should not evict a recently active session")
	}
}

func TestRegistry_CloseAllClosesEverySession(t *testing.T) {
	r := NewRegistry(allowAllAuth{}, newFakeCorrelator(), nil, testSink())

	s1, _ := r.Add(context.Background(), "W1", "tok", newFakeTransport())
	s2, _ := r.Add(context.Background(), "W2", "tok", newFakeTransport())

	r.CloseAll()

	if !s1.Closed() || !s2.Closed() {
		t.Fatalf("expected CloseAll to close every registered session")
	}
	if _, ok := r.Get("W1"); ok {
		t.Fatalf("expected W1 removed after CloseAll")
	}
	if _, ok := r.Get("W2"); ok {
		t.Fatalf("expected W2 removed after CloseAll")
	}
}
