// Package importer runs one ImportJob: parse an uploaded file with
// internal/bibparse, normalize each surviving record, compute its
// match key under the project's active strategy (internal/matchkey),
// and upsert it onto a canonical Record by (project, match_key) —
// collapsing records that already share a key instead of minting a
// fresh Record for every record_source. The tiered cluster engine in
// internal/dedup is still what later re-clusters everything under a
// chosen strategy (including custom strategies matchkey.Compute can't
// key at all); import's upsert only covers the legacy preset keys
// available at ingest time. On success it triggers the automatic
// within-source overlap pass.
package importer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/bibparse"
	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/matchkey"
	"litreview-dedupe/internal/normalize"
	"litreview-dedupe/internal/overlap"
	"litreview-dedupe/internal/store"
)

// Orchestrator runs import jobs. Overlap is optional: pass nil to skip
// the automatic within-source pass (e.g. in tests exercising only the
// parse/insert path).
type Orchestrator struct {
	Store   store.Store
	Overlap *overlap.Orchestrator
	Clock   domain.Clock
	Logger  *logrus.Logger
}

// New builds an Orchestrator. logger must not be nil.
func New(s store.Store, ov *overlap.Orchestrator, clock domain.Clock, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{Store: s, Overlap: ov, Clock: clock, Logger: logger}
}

// RunImport parses raw and persists every retained record, then marks
// the job completed/completed-with-warnings/failed. A failure to insert a
// parsed record marks the job failed and returns the error; a failure to
// load the job or to write its status is returned without updating the
// job row.
func (o *Orchestrator) RunImport(ctx context.Context, importJobID, projectID, sourceID domain.ID, raw []byte) error {
	job, err := o.Store.GetImportJob(ctx, importJobID)
	if err != nil {
		return fmt.Errorf("loading import job: %w", err)
	}
	job.Status = domain.ImportProcessing
	if err := o.Store.UpdateImportJob(ctx, job); err != nil {
		return fmt.Errorf("marking job processing: %w", err)
	}

	preset := o.activeStrategyPreset(ctx, projectID)

	result := bibparse.ParseBytes(raw)

	parsedCount := 0
	for _, pr := range result.Records {
		if !usefulRecord(pr) {
			continue
		}
		if err := o.insertRecord(ctx, projectID, sourceID, preset, pr); err != nil {
			return o.fail(ctx, job, fmt.Errorf("inserting parsed record: %w", err))
		}
		parsedCount++
	}

	job.FormatHint = result.FormatDetected
	job.ParsedCount = parsedCount
	job.Summary = result.ErrorSummary()
	now := o.Clock.Now()
	job.CompletedAt = &now

	switch {
	case parsedCount == 0:
		job.Status = domain.ImportFailed
	case result.HasWarnings():
		job.Status = domain.ImportCompletedWithWarn
	default:
		job.Status = domain.ImportCompleted
	}
	if err := o.Store.UpdateImportJob(ctx, job); err != nil {
		return fmt.Errorf("marking job terminal: %w", err)
	}

	if o.Overlap != nil && parsedCount > 0 {
		if _, err := o.Overlap.RunWithinSource(ctx, projectID, sourceID, domain.DefaultOverlapConfig()); err != nil {
			o.Logger.WithError(err).WithField("import_job_id", importJobID).Warn("importer: within-source overlap pass failed")
		}
	}
	return nil
}

// activeStrategyPreset loads the project's active strategy and returns
// its preset for match-key computation at ingest time. A project with
// no active strategy yet falls back to PresetMedium. A custom preset is
// returned as is; matchkey.Compute gives no key for it, so new
// record_sources under a custom strategy stay ungrouped by match key
// until a dedup run clusters them.
func (o *Orchestrator) activeStrategyPreset(ctx context.Context, projectID domain.ID) domain.StrategyPreset {
	strategy, err := o.Store.GetActiveStrategy(ctx, projectID)
	if err != nil {
		return domain.PresetMedium
	}
	return strategy.Preset
}

// usefulRecord mirrors spec's usefulness filter: a parsed record is
// retained only if it has a non-empty title, a DOI, or a source_record_id.
func usefulRecord(pr bibparse.ParsedRecord) bool {
	if pr.Title != nil && *pr.Title != "" {
		return true
	}
	if pr.DOI != nil && *pr.DOI != "" {
		return true
	}
	if pr.SourceRecordID != nil && *pr.SourceRecordID != "" {
		return true
	}
	return false
}

func (o *Orchestrator) insertRecord(ctx context.Context, projectID, sourceID domain.ID, preset domain.StrategyPreset, pr bibparse.ParsedRecord) error {
	rs := domain.RecordSource{
		SourceID: sourceID,
		RawData:  rawDataOf(pr),
	}
	if title, ok := normalize.Title(derefStr(pr.Title)); ok {
		rs.NormTitle = &title
	}
	if author, ok := normalize.FirstAuthorLast(pr.Authors); ok {
		rs.NormFirstAuthor = &author
	}
	if pr.Year != nil {
		rs.MatchYear = pr.Year
	}
	if doi, ok := normalize.DOI(derefStr(pr.DOI)); ok {
		rs.MatchDOI = &doi
	}

	key := matchkey.Compute(rs.NormTitle, rs.NormFirstAuthor, rs.MatchYear, rs.MatchDOI, preset)

	rec := domain.Record{
		ProjectID:    projectID,
		MatchKey:     key.Key,
		MatchBasis:   key.Basis,
		Title:        pr.Title,
		Abstract:     pr.Abstract,
		Authors:      pr.Authors,
		Year:         pr.Year,
		Journal:      pr.Journal,
		Volume:       pr.Volume,
		Issue:        pr.Issue,
		Pages:        pr.Pages,
		DOI:          pr.DOI,
		ISSN:         pr.ISSN,
		Keywords:     pr.Keywords,
		SourceFormat: pr.SourceFormat,
	}
	// CreateRecord conflict-ignores on (project, match_key): a record
	// already bearing this key is returned as-is rather than duplicated,
	// so the same DOI imported from two sources collapses onto one
	// canonical Record per spec §4.10/§8 scenario 1.
	rec, err := o.Store.CreateRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("creating record: %w", err)
	}

	rs.RecordID = rec.ID
	// CreateRecordSource conflict-ignores on (record_id, source_id): a
	// re-import of the same paper into the same source inserts nothing
	// new, per spec §3's RecordSource uniqueness invariant and §8
	// scenario 2.
	if _, err := o.Store.CreateRecordSource(ctx, rs); err != nil {
		return fmt.Errorf("creating record source: %w", err)
	}
	return nil
}

// rawDataOf flattens a ParsedRecord into the RawData convention the
// dedup/overlap orchestrators read from: keys are the lowercase names
// of the corresponding domain.Record field.
func rawDataOf(pr bibparse.ParsedRecord) map[string]any {
	raw := map[string]any{
		"authors":       pr.Authors,
		"keywords":      pr.Keywords,
		"source_format": pr.SourceFormat,
	}
	setIfPresent(raw, "title", pr.Title)
	setIfPresent(raw, "abstract", pr.Abstract)
	setIfPresent(raw, "journal", pr.Journal)
	setIfPresent(raw, "volume", pr.Volume)
	setIfPresent(raw, "issue", pr.Issue)
	setIfPresent(raw, "pages", pr.Pages)
	setIfPresent(raw, "doi", pr.DOI)
	setIfPresent(raw, "issn", pr.ISSN)
	setIfPresent(raw, "pmid", pr.PMID)
	if pr.Year != nil {
		raw["year"] = fmt.Sprintf("%d", *pr.Year)
	}
	return raw
}

func setIfPresent(raw map[string]any, key string, v *string) {
	if v != nil && *v != "" {
		raw[key] = *v
	}
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (o *Orchestrator) fail(ctx context.Context, job domain.ImportJob, cause error) error {
	o.Logger.WithError(cause).WithField("import_job_id", job.ID).Error("import job failed")
	now := o.Clock.Now()
	job.Status = domain.ImportFailed
	job.Summary = "Database error during import. Please retry or contact support."
	job.CompletedAt = &now
	if err := o.Store.UpdateImportJob(ctx, job); err != nil {
		o.Logger.WithError(err).WithField("import_job_id", job.ID).Error("failed to record job failure")
	}
	return cause
}
