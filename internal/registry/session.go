package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/worldbroker/internal/protocol"
	"github.com/ashureev/worldbroker/internal/telemetry"
)

// Correlator is the subset of the pending-request table a Session needs:
// completing a waiter when a reply frame arrives, and failing every waiter
// still outstanding against this session once it goes away.
type Correlator interface {
	Complete(requestID string, envelope protocol.Envelope)
	FailAllForSession(sessionID string)
}

// sessionSeq mints unique per-connection ids. ClientID is stable across
// reconnects and therefore unsafe to use as the correlator's bySession key
// (see Session.ID); this counter gives every connection, including
// reconnects of the same world, a distinct identity.
var sessionSeq atomic.Int64

// BroadcastSink receives envelopes that carry no requestId, i.e. unsolicited
// world-push events. It is an out-of-scope leaf collaborator; a nil sink
// simply drops such frames.
type BroadcastSink interface {
	Publish(clientID string, envelope protocol.Envelope)
}

// Session is one live, authenticated WebSocket connection to a world.
type Session struct {
	id         string
	clientID   string
	authToken  string
	transport  Transport
	lastSeen   atomic.Int64 // unix nanoseconds
	sendMu     sync.Mutex
	closed     atomic.Bool
	closeOnce  sync.Once
	registry   *Registry
	correlator Correlator
	broadcast  BroadcastSink
	sink       telemetry.Sink
}

func newSession(clientID, authToken string, transport Transport, registry *Registry, correlator Correlator, broadcast BroadcastSink, sink telemetry.Sink) *Session {
	s := &Session{
		id:         fmt.Sprintf("%s#%d", clientID, sessionSeq.Add(1)),
		clientID:   clientID,
		authToken:  authToken,
		transport:  transport,
		registry:   registry,
		correlator: correlator,
		broadcast:  broadcast,
		sink:       sink,
	}
	s.lastSeen.Store(time.Now().UnixNano())
	return s
}

// ID returns this connection's unique identity, distinct across reconnects
// of the same clientId. The correlator's bySession index is keyed by this,
// not by ClientID, so a superseded session's close path cannot fail waiters
// belonging to the session that replaced it.
func (s *Session) ID() string { return s.id }

// ClientID returns the world identity this session represents.
func (s *Session) ClientID() string { return s.clientID }

// AuthToken returns the opaque credential presented at handshake time.
func (s *Session) AuthToken() string { return s.authToken }

// LastSeen returns the last time a frame or pong was observed.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// UpdateLastSeen records liveness. Called on every inbound frame and pong.
func (s *Session) UpdateLastSeen() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool { return s.closed.Load() }

// Send serializes an envelope and writes it through the send guard. It
// fails with ErrSessionClosed if the session is already closed, and with
// ErrTransportError if the underlying write fails (which also closes the
// session).
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("registry: encode envelope: %w", err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := s.transport.Write(ctx, data); err != nil {
		s.closeLocked(CloseInternal, "write failed")
		return fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	return nil
}

// Ping sends a protocol-level ping and, on a successful pong, refreshes
// liveness. A failed ping closes the session.
func (s *Session) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := s.transport.Ping(ctx); err != nil {
		s.closeLocked(CloseInternal, "ping failed")
		return fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	s.lastSeen.Store(time.Now().UnixNano())
	return nil
}

// Close idempotently tears the session down: marks it closed, closes the
// transport, fails any waiters still registered against it, and deregisters
// from the Registry.
func (s *Session) Close(code CloseCode, reason string) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.transport.Close(code, reason); err != nil && s.sink != nil {
			s.sink.Debug("transport close error", "clientId", s.clientID, "error", err)
		}
		if s.correlator != nil {
			s.correlator.FailAllForSession(s.id)
		}
		if s.registry != nil {
			s.registry.Remove(s.clientID, s)
		}
		if s.sink != nil {
			s.sink.Info("session closed", "clientId", s.clientID, "reason", reason)
		}
	})
}

// closeLocked runs Close from within a context that already holds sendMu
// (an outbound write/ping failure). Close itself never touches sendMu, so
// this is safe to call directly.
func (s *Session) closeLocked(code CloseCode, reason string) {
	s.Close(code, reason)
}

// RunInboundPump loops reading frames until the transport errs or the
// context is cancelled, correlating replies and forwarding unsolicited
// push events to the broadcast sink.
func (s *Session) RunInboundPump(ctx context.Context) {
	for {
		data, err := s.transport.Read(ctx)
		if err != nil {
			reason := "read error"
			if CloseStatus(err) != -1 {
				reason = "closed by peer"
			}
			s.Close(CloseInternal, reason)
			return
		}
		s.UpdateLastSeen()

		env, err := protocol.Decode(data)
		if err != nil {
			if s.sink != nil {
				s.sink.Warn("dropping malformed frame", "clientId", s.clientID)
			}
			continue
		}

		if env.HasRequestID() {
			if s.correlator != nil {
				s.correlator.Complete(env.RequestID, env)
			}
			continue
		}
		if s.broadcast != nil {
			s.broadcast.Publish(s.clientID, env)
		}
	}
}
