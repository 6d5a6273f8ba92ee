// Package correlator implements the pending-request table: the
// requestId -> waiter map that turns a synchronous HTTP dispatch into an
// asynchronous WebSocket request/response exchange.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/worldbroker/internal/protocol"
	"github.com/ashureev/worldbroker/internal/telemetry"
)

// Result is what a Waiter ultimately receives: either a reply envelope, or
// an error describing why no reply will ever arrive.
type Result struct {
	Envelope protocol.Envelope
	Err      error
}

// Waiter is a one-shot completion slot registered under a requestId.
type Waiter struct {
	requestID string
	done      chan Result
}

type entry struct {
	waiter    *Waiter
	sessionID string
	timer     *time.Timer
}

// Table is the concurrent requestId -> waiter map. Each requestId is
// removed exactly once, by whichever of {reply, timeout, cancellation,
// session loss} fires first.
type Table struct {
	mu        sync.Mutex
	waiters   map[string]*entry
	bySession map[string]map[string]struct{}
	sink      telemetry.Sink
}

// NewTable constructs an empty pending-request table.
func NewTable(sink telemetry.Sink) *Table {
	return &Table{
		waiters:   make(map[string]*entry),
		bySession: make(map[string]map[string]struct{}),
		sink:      sink,
	}
}

// Register inserts a fresh waiter for requestID with the given deadline.
// sessionID identifies the session the request was routed to and may be
// empty if the caller does not want session-loss fast-fail; it is used by
// FailAllForSession to fail every outstanding request for a lost session
// immediately rather than letting each one time out.
func (t *Table) Register(requestID, sessionID string, deadline time.Duration) *Waiter {
	w := &Waiter{requestID: requestID, done: make(chan Result, 1)}
	e := &entry{waiter: w, sessionID: sessionID}

	t.mu.Lock()
	t.waiters[requestID] = e
	if sessionID != "" {
		set := t.bySession[sessionID]
		if set == nil {
			set = make(map[string]struct{})
			t.bySession[sessionID] = set
		}
		set[requestID] = struct{}{}
	}
	t.mu.Unlock()

	e.timer = time.AfterFunc(deadline, func() {
		t.Fail(requestID, ErrTimeout)
	})

	return w
}

// remove deletes requestID's entry if still present and returns it. Safe
// to call from multiple completion paths; only the first call observes ok.
func (t *Table) remove(requestID string) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.waiters[requestID]
	if !ok {
		return nil, false
	}
	delete(t.waiters, requestID)
	if e.sessionID != "" {
		if set, ok := t.bySession[e.sessionID]; ok {
			delete(set, requestID)
			if len(set) == 0 {
				delete(t.bySession, e.sessionID)
			}
		}
	}
	return e, true
}

// Complete delivers a reply envelope to the waiter registered under
// requestID. If no such waiter exists (late reply, duplicate,
// unknown id) the call is a no-op logged at warn.
func (t *Table) Complete(requestID string, envelope protocol.Envelope) {
	e, ok := t.remove(requestID)
	if !ok {
		if t.sink != nil {
			t.sink.Warn("reply for unknown or already-resolved request", "requestId", requestID)
		}
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	deliver(e.waiter, Result{Envelope: envelope})
}

// Fail delivers errorKind to the waiter registered under requestID, if any.
// Used by timeout, session-loss notification, and shutdown.
func (t *Table) Fail(requestID string, errorKind error) {
	e, ok := t.remove(requestID)
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	deliver(e.waiter, Result{Err: errorKind})
}

// FailAllForSession fails every waiter currently routed to sessionID with
// ErrSessionLost. This is the bounded improvement recommended in the
// design notes: rather than letting in-flight requests against a dead
// session time out, the lifecycle controller's close path calls this so
// callers fail fast.
func (t *Table) FailAllForSession(sessionID string) {
	t.mu.Lock()
	ids := t.bySession[sessionID]
	delete(t.bySession, sessionID)
	entries := make([]*entry, 0, len(ids))
	for id := range ids {
		if e, ok := t.waiters[id]; ok {
			delete(t.waiters, id)
			entries = append(entries, e)
		}
	}
	t.mu.Unlock()

	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		deliver(e.waiter, Result{Err: ErrSessionLost})
	}
}

// Cancel fails requestID with ErrCancelled. Used when the HTTP caller
// disconnects before a reply arrives.
func (t *Table) Cancel(requestID string) {
	t.Fail(requestID, ErrCancelled)
}

// FailAll fails every currently outstanding waiter with errorKind and
// drains the table. Used by process shutdown so no in-flight request is
// left hanging once the registry's sessions are torn down.
func (t *Table) FailAll(errorKind error) {
	t.mu.Lock()
	entries := make([]*entry, 0, len(t.waiters))
	for _, e := range t.waiters {
		entries = append(entries, e)
	}
	t.waiters = make(map[string]*entry)
	t.bySession = make(map[string]map[string]struct{})
	t.mu.Unlock()

	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		deliver(e.waiter, Result{Err: errorKind})
	}
}

// AwaitResult blocks until exactly one outcome fires for w: a reply,
// timeout, session loss, or ctx cancellation (which cancels the waiter and
// frees its table slot before returning).
func (t *Table) AwaitResult(ctx context.Context, w *Waiter) (protocol.Envelope, error) {
	select {
	case res := <-w.done:
		return res.Envelope, res.Err
	case <-ctx.Done():
		t.Cancel(w.requestID)
		select {
		case res := <-w.done:
			return res.Envelope, res.Err
		default:
			return protocol.Envelope{}, ErrCancelled
		}
	}
}

// Len reports the number of outstanding waiters. Exposed for tests
// asserting the table drains to empty once all requests resolve.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

func deliver(w *Waiter, res Result) {
	w.done <- res
}
