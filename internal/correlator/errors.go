package correlator

import "errors"

// ErrTimeout is delivered to a waiter whose deadline elapsed before a reply
// arrived.
var ErrTimeout = errors.New("correlator: timeout waiting for reply")

// ErrSessionLost is delivered to every waiter still registered against a
// session when that session closes.
var ErrSessionLost = errors.New("correlator: session lost")

// ErrCancelled is delivered when the HTTP caller disconnected before a
// reply arrived.
var ErrCancelled = errors.New("correlator: request cancelled")

// ErrUnknownRequestID is logged (not returned) when a reply's requestId
// does not match any outstanding waiter.
var ErrUnknownRequestID = errors.New("correlator: unknown requestId")
