package registry

import "errors"

// ErrRejected is returned by Registry.Add when handshake credentials fail
// auth-adapter validation.
var ErrRejected = errors.New("registry: handshake rejected")

// ErrSessionClosed is returned by Session.Send/Ping once the session has
// been closed.
var ErrSessionClosed = errors.New("registry: session closed")

// ErrTransportError wraps an underlying transport write/ping failure.
var ErrTransportError = errors.New("registry: transport error")
