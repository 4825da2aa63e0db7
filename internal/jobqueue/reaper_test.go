package jobqueue

import (
	"context"
	"testing"
	"time"

	"litreview-dedupe/internal/domain"
)

type fakeStaleStore struct {
	stale   []domain.DedupJob
	updated []domain.DedupJob
}

func (f *fakeStaleStore) StaleJobs(_ context.Context, _ int64) ([]domain.DedupJob, error) {
	return f.stale, nil
}

func (f *fakeStaleStore) UpdateDedupJob(_ context.Context, job domain.DedupJob) error {
	f.updated = append(f.updated, job)
	return nil
}

type fakeUnlocker struct {
	released []domain.ID
}

func (f *fakeUnlocker) Release(projectID domain.ID) error {
	f.released = append(f.released, projectID)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestReaperMarksStaleJobsFailedAndReleasesLock(t *testing.T) {
	projectID := domain.NewID()
	jobID := domain.NewID()
	store := &fakeStaleStore{stale: []domain.DedupJob{{ID: jobID, ProjectID: projectID, Status: domain.DedupRunning}}}
	unlocker := &fakeUnlocker{}
	reaper := NewReaper(store, unlocker, testLogger(), time.Minute, time.Hour, fixedClock{t: time.Now()})

	reaper.sweepOnce(context.Background())

	if len(store.updated) != 1 {
		t.Fatalf("expected 1 job updated, got %d", len(store.updated))
	}
	if store.updated[0].Status != domain.DedupFailed {
		t.Fatalf("expected job marked failed, got %s", store.updated[0].Status)
	}
	if store.updated[0].CompletedAt == nil {
		t.Fatal("expected CompletedAt to be stamped")
	}
	if len(unlocker.released) != 1 || unlocker.released[0] != projectID {
		t.Fatalf("expected project lock released, got %v", unlocker.released)
	}
}

func TestReaperNoopWhenNothingStale(t *testing.T) {
	store := &fakeStaleStore{}
	unlocker := &fakeUnlocker{}
	reaper := NewReaper(store, unlocker, testLogger(), time.Minute, time.Hour, fixedClock{t: time.Now()})

	reaper.sweepOnce(context.Background())

	if len(store.updated) != 0 || len(unlocker.released) != 0 {
		t.Fatal("expected no updates when nothing is stale")
	}
}
