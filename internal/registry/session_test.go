package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ashureev/worldbroker/internal/protocol"
)

func newTestSession(t *testing.T, tr Transport, correlator Correlator) *Session {
	t.Helper()
	r := NewRegistry(allowAllAuth{}, correlator, nil, testSink())
	session, err := r.Add(context.Background(), "W1", "tok", tr)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return session
}

func TestSession_SendWritesEncodedEnvelope(t *testing.T) {
	tr := newFakeTransport()
	session := newTestSession(t, tr, newFakeCorrelator())

	uuid, _ := json.Marshal("Actor.abc")
	err := session.Send(context.Background(), protocol.Envelope{
		Type:      "entity/get",
		RequestID: "r1",
		ClientID:  "W1",
		Extra:     map[string]json.RawMessage{"uuid": uuid},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(tr.writes))
	}
	got, err := protocol.Decode(tr.writes[0])
	if err != nil {
		t.Fatalf("decode written frame: %v", err)
	}
	if got.RequestID != "r1" || got.Type != "entity/get" {
		t.Fatalf("unexpected frame: %+v", got)
	}
}

func TestSession_SendAfterCloseFails(t *testing.T) {
	tr := newFakeTransport()
	session := newTestSession(t, tr, newFakeCorrelator())
	session.Close(CloseNormal, "test")

	err := session.Send(context.Background(), protocol.Envelope{Type: "entity/get", RequestID: "r1"})
	if err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_SendFailureClosesSession(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = context.DeadlineExceeded
	session := newTestSession(t, tr, newFakeCorrelator())

	err := session.Send(context.Background(), protocol.Envelope{Type: "entity/get", RequestID: "r1"})
	if err == nil {
		t.Fatalf("expected write error")
	}
	if !session.Closed() {
		t.Fatalf("expected session to be closed after write failure")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	corr := newFakeCorrelator()
	session := newTestSession(t, tr, corr)

	session.Close(CloseNormal, "first")
	session.Close(CloseNormal, "second")

	if tr.closeCalls != 1 {
		t.Fatalf("expected exactly one transport close, got %d", tr.closeCalls)
	}
	if corr.failed[session.ID()] != 1 {
		t.Fatalf("expected correlator notified exactly once, got %d", corr.failed[session.ID()])
	}
}

func TestSession_RunInboundPumpCompletesReplies(t *testing.T) {
	tr := newFakeTransport()
	corr := newFakeCorrelator()
	session := newTestSession(t, tr, corr)

	done := make(chan struct{})
	go func() {
		session.RunInboundPump(context.Background())
		close(done)
	}()

	frame, _ := protocol.Encode(protocol.Envelope{Type: "entity/get-result", RequestID: "r1"})
	tr.push(frame)

	time.Sleep(20 * time.Millisecond)
	if corr.completed["r1"] != 1 {
		t.Fatalf("expected reply to be correlated, got %v", corr.completed)
	}

	session.Close(CloseNormal, "done")
	<-done
}

func TestSession_RunInboundPumpDropsMalformedFrames(t *testing.T) {
	tr := newFakeTransport()
	corr := newFakeCorrelator()
	session := newTestSession(t, tr, corr)

	done := make(chan struct{})
	go func() {
		session.RunInboundPump(context.Background())
		close(done)
	}()

	tr.push([]byte(`not json`))
	time.Sleep(20 * time.Millisecond)

	session.Close(CloseNormal, "done")
	<-done

	if len(corr.completed) != 0 {
		t.Fatalf("malformed frame must not be correlated")
	}
}

func TestSession_PingUpdatesLastSeenOnSuccess(t *testing.T) {
	tr := newFakeTransport()
	session := newTestSession(t, tr, newFakeCorrelator())
	session.lastSeen.Store(0)

	if err := session.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.LastSeen().IsZero() || session.LastSeen().Unix() == 0 {
		t.Fatalf("expected lastSeen to be refreshed")
	}
}

func TestSession_PingFailureClosesSession(t *testing.T) {
	tr := newFakeTransport()
	tr.pingErr = context.DeadlineExceeded
	session := newTestSession(t, tr, newFakeCorrelator())

	if err := session.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
	if !session.Closed() {
		t.Fatalf("expected session closed after failed ping")
	}
}
