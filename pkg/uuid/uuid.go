// Package uuid provides the UUID and CallerID value types used as opaque
// identifiers for resources, users, and connections throughout the backend.
package uuid

import (
	"bytes"

	"github.com/google/uuid"
)

// UUID is a 16-byte identifier. Ordering is lexicographic on the raw bytes,
// matching google/uuid's underlying [16]byte representation directly.
type UUID = uuid.UUID

// Nil is the null UUID sentinel, all 16 bytes zero.
var Nil = uuid.Nil

// New generates a random (version 4) UUID.
func New() UUID {
	return uuid.New()
}

// Parse decodes the canonical 36-character string form.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// Compare orders two UUIDs by raw byte value. It returns -1, 0, or 1 as a
// and b compare less than, equal to, or greater than each other.
func Compare(a, b UUID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b under raw-byte ordering.
func Less(a, b UUID) bool {
	return Compare(a, b) < 0
}

// CallerID identifies the caller of an operation as the pair of the
// authenticated user and the specific connection they are calling over. It
// is comparable and usable directly as a map key.
type CallerID struct {
	UserID       UUID
	ConnectionID UUID
}

// IsZero reports whether both components are the nil UUID.
func (c CallerID) IsZero() bool {
	return c.UserID == Nil && c.ConnectionID == Nil
}
