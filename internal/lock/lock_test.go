package lock

import (
	"testing"

	"github.com/google/uuid"
)

func TestInMemoryTryAcquireExcludesSecondCaller(t *testing.T) {
	l := NewInMemory()
	projectID := uuid.New()

	ok, err := l.TryAcquire(projectID)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = l.TryAcquire(projectID)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail while held, got ok=%v err=%v", ok, err)
	}
}

func TestInMemoryReleaseFreesTheLock(t *testing.T) {
	l := NewInMemory()
	projectID := uuid.New()

	if _, err := l.TryAcquire(projectID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Release(projectID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := l.TryAcquire(projectID)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed after release, got ok=%v err=%v", ok, err)
	}
}

func TestInMemoryLocksAreIndependentPerProject(t *testing.T) {
	l := NewInMemory()
	p1, p2 := uuid.New(), uuid.New()

	if ok, err := l.TryAcquire(p1); err != nil || !ok {
		t.Fatalf("expected p1 acquire to succeed, got ok=%v err=%v", ok, err)
	}
	if ok, err := l.TryAcquire(p2); err != nil || !ok {
		t.Fatalf("expected p2 acquire to succeed independently, got ok=%v err=%v", ok, err)
	}
}

func TestReleaseUnheldLockIsNoop(t *testing.T) {
	l := NewInMemory()
	if err := l.Release(uuid.New()); err != nil {
		t.Fatalf("expected releasing an unheld lock to be a no-op, got %v", err)
	}
}

func TestHashProjectIDIsStableAndNonNegative(t *testing.T) {
	id := uuid.New()
	a := HashProjectID(id)
	b := HashProjectID(id)
	if a != b {
		t.Fatalf("expected a stable hash, got %d then %d", a, b)
	}
	if a < 0 {
		t.Fatalf("expected a non-negative int64 (Postgres advisory keys are signed bigints), got %d", a)
	}
}

func TestHashProjectIDDiffersAcrossProjects(t *testing.T) {
	a := HashProjectID(uuid.New())
	b := HashProjectID(uuid.New())
	if a == b {
		t.Fatal("expected distinct projects to (almost certainly) hash differently")
	}
}
