package correlator

import "github.com/google/uuid"

// NewRequestID mints a fresh, unguessable correlation token. Collisions are
// negligible: it is a random UUIDv4.
func NewRequestID() string {
	return uuid.NewString()
}
