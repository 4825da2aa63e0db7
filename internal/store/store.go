// Package store defines the persistence gateway every orchestrator in
// this system depends on. The interfaces are deliberately narrow and
// composed, not one god-object repository, so a dedup run that only
// needs RecordStore+JobStore can be tested against a fake that never
// has to know about clusters.
package store

import (
	"context"

	"github.com/google/uuid"

	"litreview-dedupe/internal/domain"
)

// RecordStore owns Record and RecordSource persistence: the canonical
// rows dedup collapses imports into, and the per-source rows that point
// at them.
type RecordStore interface {
	GetRecordSourcesBySource(ctx context.Context, sourceID uuid.UUID) ([]domain.RecordSource, error)
	GetRecordSourcesByProject(ctx context.Context, projectID uuid.UUID) ([]domain.RecordSource, error)
	// CreateRecordSource inserts a new per-source assertion row; the
	// importer is the only writer. rs.RecordID must already reference an
	// extant Record. Conflict-ignore on (record_id, source_id): a row
	// already asserting this record from this source is returned
	// untouched rather than duplicated, so re-importing the same paper
	// into the same source is a no-op.
	CreateRecordSource(ctx context.Context, rs domain.RecordSource) (domain.RecordSource, error)
	GetRecord(ctx context.Context, id uuid.UUID) (domain.Record, error)
	// CreateRecord inserts a new canonical Record, or — when rec carries
	// a non-nil MatchKey already held by another record in the same
	// project — conflict-ignores and returns the existing one. A nil
	// MatchKey always inserts; those rows stay isolated until a dedup
	// run's tiered cluster engine collapses them.
	CreateRecord(ctx context.Context, rec domain.Record) (domain.Record, error)
	FindRecordByMatchKey(ctx context.Context, projectID uuid.UUID, matchKey string) (domain.Record, bool, error)
	CountRecords(ctx context.Context, projectID uuid.UUID) (int, error)

	// UpdateRecordSourceLinks rewrites record_sources.record_id for every
	// (recordSourceID -> newRecordID) pair in updates, in batches no
	// larger than the store's parameter budget.
	UpdateRecordSourceLinks(ctx context.Context, updates map[uuid.UUID]uuid.UUID) error

	// DeleteOrphanRecords removes Record rows no RecordSource points at
	// any longer, scoped to projectID. Must run after match log entries
	// for the run that orphaned them have been flushed, so the audit
	// trail always predates the deletion it explains.
	DeleteOrphanRecords(ctx context.Context, projectID uuid.UUID) (int, error)
}

// JobStore owns the lifecycle of background import and dedup jobs.
type JobStore interface {
	CreateImportJob(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	UpdateImportJob(ctx context.Context, job domain.ImportJob) error
	GetImportJob(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)

	CreateDedupJob(ctx context.Context, job domain.DedupJob) (domain.DedupJob, error)
	UpdateDedupJob(ctx context.Context, job domain.DedupJob) error
	GetDedupJob(ctx context.Context, id uuid.UUID) (domain.DedupJob, error)

	// StaleJobs returns DedupJob rows still pending or running whose
	// CreatedAt predates the given cutoff, for the reaper sweep.
	StaleJobs(ctx context.Context, cutoff int64) ([]domain.DedupJob, error)

	AppendMatchLogs(ctx context.Context, entries []domain.MatchLog) error
}

// StrategyStore owns MatchStrategy persistence.
type StrategyStore interface {
	GetActiveStrategy(ctx context.Context, projectID uuid.UUID) (domain.MatchStrategy, error)
	GetStrategy(ctx context.Context, id uuid.UUID) (domain.MatchStrategy, error)
	SaveStrategy(ctx context.Context, s domain.MatchStrategy) (domain.MatchStrategy, error)
}

// ClusterStore owns OverlapCluster and OverlapClusterMember persistence.
type ClusterStore interface {
	CreateCluster(ctx context.Context, cluster domain.OverlapCluster, members []domain.OverlapClusterMember) error
	GetCluster(ctx context.Context, id uuid.UUID) (domain.OverlapCluster, error)
	GetClustersByProject(ctx context.Context, projectID uuid.UUID) ([]domain.OverlapCluster, error)
	GetClusterMembers(ctx context.Context, clusterID uuid.UUID) ([]domain.OverlapClusterMember, error)
	GetMembersForRecordSources(ctx context.Context, recordSourceIDs []uuid.UUID) ([]domain.OverlapClusterMember, error)

	// DeleteClustersByScope deletes every non-locked cluster in
	// projectID matching scope. When sourceID is non-nil, deletion is
	// additionally restricted to clusters whose members belong only to
	// that source (the within-source auto-detection sweep).
	DeleteClustersByScope(ctx context.Context, projectID uuid.UUID, scope domain.ClusterScope, sourceID *uuid.UUID) (int, error)

	SetClusterLocked(ctx context.Context, clusterID uuid.UUID, locked bool) error
	DeleteCluster(ctx context.Context, clusterID uuid.UUID) error
}

// Store is the full persistence gateway. Orchestrators take the narrow
// interface they need; Store exists so internal/app can wire one
// concrete implementation into all of them.
type Store interface {
	RecordStore
	JobStore
	StrategyStore
	ClusterStore
}
