// Package domain holds the core entity shapes shared by every subsystem:
// parser output, clustering input, and the persistence gateway contract.
// Nothing in this package performs I/O.
package domain

import (
	"github.com/google/uuid"
)

// ID is a project-scoped identifier. Every entity in this system is
// addressed by a UUID rather than a sequential integer so that ids can be
// generated client-side (import workers, tests) without a round trip.
type ID = uuid.UUID

// NewID generates a fresh random identifier.
func NewID() ID {
	return uuid.New()
}

// ZeroID reports whether id is the unset UUID.
func ZeroID(id ID) bool {
	return id == uuid.Nil
}
