// Package lock provides per-project mutual exclusion so a dedup run and
// an overlap-detection run (or two dedup runs) never mutate the same
// project's record_sources concurrently. Locks are advisory: every
// caller must go through TryAcquire/Release, nothing enforces it at the
// storage layer.
package lock

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ProjectLock is a non-blocking, per-project mutual-exclusion lock.
type ProjectLock interface {
	// TryAcquire returns true if the lock for projectID was free and is
	// now held by the caller. It never blocks.
	TryAcquire(projectID uuid.UUID) (bool, error)
	// Release gives up a lock this caller holds. Releasing a lock the
	// caller does not hold is a no-op.
	Release(projectID uuid.UUID) error
}

// HashProjectID derives a stable int64 advisory-lock key from a project
// UUID: the UUID's low 63 bits (its last 8 bytes, big-endian, with the
// top bit masked off) so the result is always representable as a signed
// Postgres bigint (pg_advisory_lock takes a signed bigint; a key with the
// sign bit set would silently wrap).
func HashProjectID(projectID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(projectID[8:]) & 0x7fffffffffffffff)
}
