package jobqueue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/domain"
)

// StaleJobSource is the slice of the store.JobStore a Reaper needs. A
// process that crashed mid-run leaves a DedupJob stuck in "running"
// forever; the reaper periodically finds those and flips them to
// failed so a stuck project doesn't look permanently locked.
type StaleJobSource interface {
	StaleJobs(ctx context.Context, cutoff int64) ([]domain.DedupJob, error)
	UpdateDedupJob(ctx context.Context, job domain.DedupJob) error
}

// ProjectUnlocker releases a held project lock. Implemented by
// lock.ProjectLock's Release method.
type ProjectUnlocker interface {
	Release(projectID domain.ID) error
}

// Reaper periodically marks dedup/overlap jobs stuck past a staleness
// threshold as failed and releases their project lock.
type Reaper struct {
	store     StaleJobSource
	unlocker  ProjectUnlocker
	logger    *logrus.Logger
	staleness time.Duration
	interval  time.Duration
	clock     domain.Clock
}

// NewReaper builds a Reaper. staleness is how long a job may sit in
// running/pending before it is considered abandoned; interval is how
// often the sweep runs.
func NewReaper(store StaleJobSource, unlocker ProjectUnlocker, logger *logrus.Logger, staleness, interval time.Duration, clock domain.Clock) *Reaper {
	if staleness <= 0 {
		staleness = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{store: store, unlocker: unlocker, logger: logger, staleness: staleness, interval: interval, clock: clock}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	cutoff := r.clock.Now().Add(-r.staleness).Unix()
	stale, err := r.store.StaleJobs(ctx, cutoff)
	if err != nil {
		r.logger.WithError(err).Error("reaper: failed to list stale jobs")
		return
	}
	for _, job := range stale {
		job.Status = domain.DedupFailed
		job.ErrorMsg = "job exceeded staleness threshold and was reaped"
		now := r.clock.Now()
		job.CompletedAt = &now
		if err := r.store.UpdateDedupJob(ctx, job); err != nil {
			r.logger.WithError(err).WithField("job_id", job.ID).Error("reaper: failed to mark job failed")
			continue
		}
		if err := r.unlocker.Release(job.ProjectID); err != nil {
			r.logger.WithError(err).WithField("project_id", job.ProjectID).Warn("reaper: failed to release project lock")
		}
		r.logger.WithField("job_id", job.ID).Warn("reaper: reaped stale job")
	}
}
