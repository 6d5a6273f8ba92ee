// Package registry implements the process-wide mapping of clientId to live
// WebSocket Session, plus the lifecycle controller that drives handshake,
// ping, and inactivity sweep for those sessions.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/worldbroker/internal/telemetry"
)

// AuthValidator validates a world's handshake credentials. It is the narrow
// contract the session lifecycle controller needs from the broker's
// user/authentication store.
type AuthValidator interface {
	ValidateHeadlessSession(ctx context.Context, clientID, token string) bool
}

// Registry is the concurrent clientId -> Session map. It contains only
// non-closed sessions; add/remove appear atomic to readers.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	auth       AuthValidator
	correlator Correlator
	broadcast  BroadcastSink
	sink       telemetry.Sink
}

// NewRegistry constructs an empty Registry.
func NewRegistry(auth AuthValidator, correlator Correlator, broadcast BroadcastSink, sink telemetry.Sink) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		auth:       auth,
		correlator: correlator,
		broadcast:  broadcast,
		sink:       sink,
	}
}

// Add validates the handshake via the auth adapter and, on success,
// atomically inserts a new Session for clientID. A prior Session for the
// same clientID is superseded: it is closed after the new one is visible to
// readers, so Get never observes a gap.
func (r *Registry) Add(ctx context.Context, clientID, authToken string, transport Transport) (*Session, error) {
	if !r.auth.ValidateHeadlessSession(ctx, clientID, authToken) {
		return nil, ErrRejected
	}

	session := newSession(clientID, authToken, transport, r, r.correlator, r.broadcast, r.sink)

	r.mu.Lock()
	prev := r.sessions[clientID]
	r.sessions[clientID] = session
	r.mu.Unlock()

	if prev != nil {
		prev.Close(CloseSuperseded, "superseded by new connection")
	}

	if r.sink != nil {
		r.sink.Info("session registered", "clientId", clientID)
	}
	return session, nil
}

// Remove deregisters session for clientID, but only if it is still the
// instance stored for that id. This prevents a superseded session's
// delayed close from removing its successor. Idempotent.
func (r *Registry) Remove(clientID string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[clientID]; ok && cur == session {
		delete(r.sessions, clientID)
	}
}

// Get returns the live Session for clientID, if any.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[clientID]
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every live session with CloseNormal, "server shutting
// down". Called from the process shutdown sequence so no hijacked
// WebSocket connection is simply abandoned when the HTTP server stops.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close(CloseNormal, "server shutting down")
	}
}

// SweepInactive closes and removes every session whose last-seen timestamp
// is older than threshold.
func (r *Registry) SweepInactive(threshold time.Duration) {
	now := time.Now()

	r.mu.RLock()
	var stale []*Session
	for _, s := range r.sessions {
		if now.Sub(s.LastSeen()) > threshold {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range stale {
		if r.sink != nil {
			r.sink.Info("inactivity sweep evicting session", "clientId", s.ClientID())
		}
		s.Close(CloseInternal, "inactivity sweep")
	}
}
