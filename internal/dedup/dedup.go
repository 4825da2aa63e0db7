// Package dedup implements the project-level dedup orchestrator: the
// twelve-step algorithm that snapshots a project's record_sources,
// clusters them with internal/cluster, upserts canonical records, and
// re-points every member — all inside the advisory lock so no two runs
// for the same project ever interleave.
package dedup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/cluster"
	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/lock"
	"litreview-dedupe/internal/rawdata"
	"litreview-dedupe/internal/store"
	pkgerrors "litreview-dedupe/pkg/errors"
)

// Orchestrator runs dedup jobs for a project under the advisory lock.
type Orchestrator struct {
	Store  store.Store
	Lock   lock.ProjectLock
	Clock  domain.Clock
	Logger *logrus.Logger
}

// New builds an Orchestrator. logger must not be nil.
func New(s store.Store, l lock.ProjectLock, clock domain.Clock, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{Store: s, Lock: l, Clock: clock, Logger: logger}
}

// ErrProjectLocked is returned when another job already holds the
// project's advisory lock.
var ErrProjectLocked = fmt.Errorf("project is locked by another running job")

// RunDedup executes the full algorithm for dedupJobID against
// projectID under strategyID, exactly per the twelve documented steps.
// Any error is recorded on the DedupJob, which is marked failed, and is
// also returned to the caller. When another job already holds the
// project lock, the job is marked failed with the project-locked message
// and ErrProjectLocked is returned.
func (o *Orchestrator) RunDedup(ctx context.Context, dedupJobID, projectID, strategyID domain.ID) error {
	acquired, err := o.Lock.TryAcquire(projectID)
	if err != nil {
		return o.fail(ctx, dedupJobID, fmt.Errorf("acquiring project lock: %w", err))
	}
	if !acquired {
		if job, err := o.Store.GetDedupJob(ctx, dedupJobID); err == nil {
			now := o.Clock.Now()
			job.Status = domain.DedupFailed
			job.ErrorMsg = pkgerrors.ProjectLockedError("run_dedup").Message
			job.CompletedAt = &now
			if err := o.Store.UpdateDedupJob(ctx, job); err != nil {
				o.Logger.WithError(err).WithField("dedup_job_id", dedupJobID).Error("failed to record job failure")
			}
		}
		return ErrProjectLocked
	}
	defer func() {
		if err := o.Lock.Release(projectID); err != nil {
			o.Logger.WithError(err).WithField("project_id", projectID).Warn("dedup: failed to release project lock")
		}
	}()

	if err := o.runLocked(ctx, dedupJobID, projectID, strategyID); err != nil {
		return o.fail(ctx, dedupJobID, err)
	}
	return nil
}

func (o *Orchestrator) runLocked(ctx context.Context, dedupJobID, projectID, strategyID domain.ID) error {
	// Step 1: load strategy, resolve config.
	strategy, err := o.Store.GetStrategy(ctx, strategyID)
	if err != nil {
		return fmt.Errorf("loading strategy: %w", err)
	}
	cfg := domain.ResolveDedupConfig(strategy)

	job, err := o.Store.GetDedupJob(ctx, dedupJobID)
	if err != nil {
		return fmt.Errorf("loading dedup job: %w", err)
	}
	job.Status = domain.DedupRunning

	// Step 2: snapshot records_before.
	recordsBefore, err := o.Store.CountRecords(ctx, projectID)
	if err != nil {
		return fmt.Errorf("counting records before: %w", err)
	}
	job.RecordsBefore = recordsBefore
	if err := o.Store.UpdateDedupJob(ctx, job); err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}

	// Step 3: load record_sources with precomputed norm fields.
	recordSources, err := o.Store.GetRecordSourcesByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("loading record sources: %w", err)
	}

	// Step 4: build SourceRecord objects, run the clustering engine.
	sources := make([]cluster.SourceRecord, len(recordSources))
	bySourceID := make(map[domain.ID]domain.RecordSource, len(recordSources))
	for i, rs := range recordSources {
		sources[i] = toSourceRecord(rs)
		bySourceID[rs.ID] = rs
	}
	clusters := cluster.ComputeDedupClusters(sources, cfg)

	updates := make(map[domain.ID]domain.ID)
	var matchLogs []domain.MatchLog
	merges := 0
	clustersCreated := 0

	for _, c := range clusters {
		if c.Size() == 1 {
			// Step 8/9: isolated singleton — record_id unchanged, log "unchanged".
			rs := bySourceID[c.Representative.ID]
			matchLogs = append(matchLogs, domain.MatchLog{
				DedupJobID:  dedupJobID,
				RecordSrcID: rs.ID,
				OldRecordID: rs.RecordID,
				NewRecordID: rs.RecordID,
				MatchBasis:  "none",
				Action:      domain.ActionUnchanged,
			})
			continue
		}

		// Step 5: compute the canonical match_key from tier + representative.
		matchKey := canonicalMatchKey(c)

		// Step 6: upsert canonical record by (project, match_key).
		rec, found, err := o.Store.FindRecordByMatchKey(ctx, projectID, matchKey)
		if err != nil {
			return fmt.Errorf("looking up canonical record: %w", err)
		}
		if !found {
			rec = recordFromRepresentative(projectID, matchKey, c, bySourceID[c.Representative.ID])
			rec, err = o.Store.CreateRecord(ctx, rec)
			if err != nil {
				return fmt.Errorf("creating canonical record: %w", err)
			}
			clustersCreated++
		}

		// Step 7/8: re-point every member; step 9: log merged/unchanged.
		for _, member := range c.Members {
			rs := bySourceID[member.ID]
			if rs.RecordID != rec.ID {
				updates[rs.ID] = rec.ID
				merges++
				matchLogs = append(matchLogs, domain.MatchLog{
					DedupJobID:  dedupJobID,
					RecordSrcID: rs.ID,
					OldRecordID: rs.RecordID,
					NewRecordID: rec.ID,
					MatchKey:    &matchKey,
					MatchBasis:  c.MatchBasis,
					Action:      domain.ActionMerged,
				})
			} else {
				matchLogs = append(matchLogs, domain.MatchLog{
					DedupJobID:  dedupJobID,
					RecordSrcID: rs.ID,
					OldRecordID: rs.RecordID,
					NewRecordID: rs.RecordID,
					MatchKey:    &matchKey,
					MatchBasis:  c.MatchBasis,
					Action:      domain.ActionUnchanged,
				})
			}
		}
	}

	if len(updates) > 0 {
		if err := o.Store.UpdateRecordSourceLinks(ctx, updates); err != nil {
			return fmt.Errorf("re-pointing record sources: %w", err)
		}
	}

	// Step 10: flush match log before deleting orphans.
	if err := o.Store.AppendMatchLogs(ctx, matchLogs); err != nil {
		return fmt.Errorf("appending match logs: %w", err)
	}

	// Step 11: delete orphaned canonical records.
	deletedOrphans, err := o.Store.DeleteOrphanRecords(ctx, projectID)
	if err != nil {
		return fmt.Errorf("deleting orphan records: %w", err)
	}

	// Step 12: snapshot records_after, mark completed, activate the strategy.
	recordsAfter, err := o.Store.CountRecords(ctx, projectID)
	if err != nil {
		return fmt.Errorf("counting records after: %w", err)
	}

	now := o.Clock.Now()
	job.Status = domain.DedupCompleted
	job.RecordsAfter = recordsAfter
	job.Merges = merges
	job.ClustersCreated = clustersCreated
	job.ClustersDeleted = deletedOrphans
	job.CompletedAt = &now
	if err := o.Store.UpdateDedupJob(ctx, job); err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}

	strategy.Active = true
	if _, err := o.Store.SaveStrategy(ctx, strategy); err != nil {
		return fmt.Errorf("activating strategy: %w", err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, dedupJobID domain.ID, cause error) error {
	o.Logger.WithError(cause).WithField("dedup_job_id", dedupJobID).Error("dedup job failed")
	job, err := o.Store.GetDedupJob(ctx, dedupJobID)
	if err != nil {
		// The job row itself is unreachable; nothing left to record.
		return cause
	}
	now := o.Clock.Now()
	job.Status = domain.DedupFailed
	job.ErrorMsg = userSafeMessage(cause)
	job.CompletedAt = &now
	if updateErr := o.Store.UpdateDedupJob(ctx, job); updateErr != nil {
		o.Logger.WithError(updateErr).WithField("dedup_job_id", dedupJobID).Error("failed to record job failure")
	}
	return cause
}

// userSafeMessage strips internal detail from an orchestrator error per
// the InternalDbError kind in the error-handling design: the raw error
// is logged above, never surfaced.
func userSafeMessage(err error) string {
	return "Dedup run failed. Please retry or contact support."
}

// canonicalMatchKey derives the step-5 grammar from a cluster's tier and
// representative. This is independent of internal/matchkey's preset-
// keyed grammar (§4.3): that one governs legacy single-key lookups,
// this one is keyed by which tiered pass actually produced the cluster.
func canonicalMatchKey(c cluster.DedupCluster) string {
	rep := c.Representative
	yearStr := "unknown"
	if rep.MatchYear != nil {
		yearStr = fmt.Sprintf("%d", *rep.MatchYear)
	}

	switch c.MatchBasis {
	case "tier1_doi":
		if rep.MatchDOI != nil {
			return fmt.Sprintf("doi:%s", *rep.MatchDOI)
		}
	case "tier1_pmid":
		if rep.PMID != nil {
			return fmt.Sprintf("pmid:%s", *rep.PMID)
		}
	case "tier2_title_year":
		if rep.NormTitle != nil {
			return fmt.Sprintf("ty:%s|%d", *rep.NormTitle, derefYear(rep.MatchYear))
		}
	case "tier2_title_author_year":
		if rep.NormTitle != nil && rep.NormFirstAuthor != nil {
			return fmt.Sprintf("tay:%s|%s|%d", *rep.NormTitle, *rep.NormFirstAuthor, derefYear(rep.MatchYear))
		}
	case "tier3_fuzzy":
		score := 0.0
		if c.SimilarityScore != nil {
			score = *c.SimilarityScore
		}
		title := ""
		if rep.NormTitle != nil {
			title = *rep.NormTitle
		}
		return fmt.Sprintf("fuz:%.2f:%s|%s", score, title, yearStr)
	}
	return fmt.Sprintf("auto:%s", rep.ID.String())
}

func derefYear(y *int) int {
	if y == nil {
		return 0
	}
	return *y
}

func toSourceRecord(rs domain.RecordSource) cluster.SourceRecord {
	return cluster.SourceRecord{
		ID:              rs.ID,
		OldRecordID:     rs.RecordID,
		NormTitle:       rs.NormTitle,
		NormFirstAuthor: rs.NormFirstAuthor,
		MatchYear:       rs.MatchYear,
		MatchDOI:        rs.MatchDOI,
		PMID:            rawdata.String(rs.RawData, "pmid"),
		Authors:         rawdata.Authors(rs.RawData),
		HasAbstract:     rawdata.String(rs.RawData, "abstract") != nil,
	}
}

// recordFromRepresentative builds a new canonical Record from the raw,
// unnormalized bibliographic fields of the cluster's chosen
// representative's record_source. RecordSource.RawData is the
// convention established by the import pipeline: ParsedRecord's fields,
// keyed by their lowercase domain.Record field names.
func recordFromRepresentative(projectID domain.ID, matchKey string, c cluster.DedupCluster, rs domain.RecordSource) domain.Record {
	raw := rs.RawData
	return domain.Record{
		ProjectID:    projectID,
		MatchKey:     &matchKey,
		MatchBasis:   c.MatchBasis,
		Title:        rawdata.String(raw, "title"),
		Abstract:     rawdata.String(raw, "abstract"),
		Authors:      rawdata.Authors(raw),
		Year:         rs.MatchYear,
		Journal:      rawdata.String(raw, "journal"),
		Volume:       rawdata.String(raw, "volume"),
		Issue:        rawdata.String(raw, "issue"),
		Pages:        rawdata.String(raw, "pages"),
		DOI:          rs.MatchDOI,
		ISSN:         rawdata.String(raw, "issn"),
		Keywords:     rawdata.StringSlice(raw, "keywords"),
		SourceFormat: rawdata.StringValue(raw, "source_format"),
	}
}
