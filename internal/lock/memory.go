package lock

import (
	"sync"

	"github.com/google/uuid"
)

// InMemory is a ProjectLock backed by a guarded set, for the single-
// process demo server and for tests. It does not survive a restart,
// which is fine: a crashed process holds no locks to begin with.
type InMemory struct {
	mu     sync.Mutex
	locked map[uuid.UUID]bool
}

// NewInMemory builds an empty InMemory lock table.
func NewInMemory() *InMemory {
	return &InMemory{locked: make(map[uuid.UUID]bool)}
}

func (l *InMemory) TryAcquire(projectID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[projectID] {
		return false, nil
	}
	l.locked[projectID] = true
	return true, nil
}

func (l *InMemory) Release(projectID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, projectID)
	return nil
}
