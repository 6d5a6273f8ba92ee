package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/worldbroker/internal/protocol"
)

// fakeTransport is an in-memory Transport used by registry tests so Session
// and Registry logic can be exercised without a real socket.
type fakeTransport struct {
	mu         sync.Mutex
	closed     bool
	closeCode  CloseCode
	closeErr   error
	writeErr   error
	pingErr    error
	inbound    chan []byte
	writes     [][]byte
	pingCount  int
	closeCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 16)}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-f.inbound:
		if !ok {
			return nil, errors.New("fake transport closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingCount++
	return f.pingErr
}

func (f *fakeTransport) Close(code CloseCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if f.closed {
		return nil
	}
	f.closed = true
	f.closeCode = code
	close(f.inbound)
	return f.closeErr
}

func (f *fakeTransport) push(data []byte) {
	f.inbound <- data
}

type allowAllAuth struct{}

func (allowAllAuth) ValidateHeadlessSession(ctx context.Context, clientID, token string) bool {
	return token != "reject-me"
}

type fakeCorrelator struct {
	mu        sync.Mutex
	completed map[string]int
	failed    map[string]int
}

func newFakeCorrelator() *fakeCorrelator {
	return &fakeCorrelator{completed: map[string]int{}, failed: map[string]int{}}
}

func (f *fakeCorrelator) Complete(requestID string, _ protocol.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[requestID]++
}

func (f *fakeCorrelator) FailAllForSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[sessionID]++
}
