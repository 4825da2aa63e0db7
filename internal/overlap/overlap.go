// Package overlap implements the two overlap-detection passes (the
// automatic within-source sweep that runs after every import, and the
// manual full-project cross-source sweep), the read-only preview, the
// manual-link decision function, and the visual summary aggregates —
// all built on the same internal/cluster overlap-mode engine.
package overlap

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/cluster"
	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/lock"
	"litreview-dedupe/internal/rawdata"
	"litreview-dedupe/internal/store"
)

// ErrInvalidManualLinkInput is returned when a manual link request
// names fewer than two record sources.
var ErrInvalidManualLinkInput = fmt.Errorf("manual link requires at least two record sources")

// Orchestrator runs both overlap-detection passes and serves the
// preview/manual-link/visual-summary operations.
type Orchestrator struct {
	Store  store.Store
	Lock   lock.ProjectLock
	Clock  domain.Clock
	Logger *logrus.Logger
}

// New builds an Orchestrator.
func New(s store.Store, l lock.ProjectLock, clock domain.Clock, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{Store: s, Lock: l, Clock: clock, Logger: logger}
}

// RunWithinSource is the auto pass triggered after a successful import
// of source S: it loads only S's record_sources, detects overlaps
// within them, deletes prior within-source clusters gated to S (the
// corrected, scope-gated deletion — see DESIGN.md), and persists the
// new ones. No advisory lock: the caller's import already holds the
// project lock, so two within-source passes for the same source never
// interleave.
func (o *Orchestrator) RunWithinSource(ctx context.Context, projectID, sourceID domain.ID, cfg domain.OverlapConfig) (int, error) {
	recordSources, err := o.Store.GetRecordSourcesBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("loading record sources: %w", err)
	}
	records := toOverlapRecords(recordSources, sourceID)
	detected := cluster.Detect(records, cfg)

	if _, err := o.Store.DeleteClustersByScope(ctx, projectID, domain.ScopeWithinSource, &sourceID); err != nil {
		return 0, fmt.Errorf("deleting prior within-source clusters: %w", err)
	}

	created := 0
	for _, c := range detected {
		oc, members := toPersistedCluster(projectID, nil, c, domain.ScopeWithinSource)
		if err := o.Store.CreateCluster(ctx, oc, members); err != nil {
			return created, fmt.Errorf("persisting within-source cluster: %w", err)
		}
		created++
	}
	return created, nil
}

// ErrProjectLocked mirrors dedup.ErrProjectLocked for the manual pass.
var ErrProjectLocked = fmt.Errorf("project is locked by another running job")

// RunManual is the API-initiated, full-project cross-source pass. It
// runs under the advisory lock, deletes unlocked cross_source clusters,
// and persists new ones — excluding any record_source already covered
// by a locked cluster.
func (o *Orchestrator) RunManual(ctx context.Context, projectID domain.ID, cfg domain.OverlapConfig) (int, error) {
	acquired, err := o.Lock.TryAcquire(projectID)
	if err != nil {
		return 0, fmt.Errorf("acquiring project lock: %w", err)
	}
	if !acquired {
		return 0, ErrProjectLocked
	}
	defer func() {
		if err := o.Lock.Release(projectID); err != nil {
			o.Logger.WithError(err).WithField("project_id", projectID).Warn("overlap: failed to release project lock")
		}
	}()

	recordSources, err := o.Store.GetRecordSourcesByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("loading record sources: %w", err)
	}

	lockedIDs, err := o.lockedRecordSourceIDs(ctx, projectID)
	if err != nil {
		return 0, err
	}

	var candidates []domain.RecordSource
	for _, rs := range recordSources {
		if !lockedIDs[rs.ID] {
			candidates = append(candidates, rs)
		}
	}

	records := toOverlapRecordsMixed(candidates)
	detected := cluster.Detect(records, cfg)

	if _, err := o.Store.DeleteClustersByScope(ctx, projectID, domain.ScopeCrossSource, nil); err != nil {
		return 0, fmt.Errorf("deleting prior cross-source clusters: %w", err)
	}

	created := 0
	for _, c := range detected {
		if len(distinctSources(c.Records)) < 2 {
			continue // same-source groups surfaced here belong to the within-source pass, not this one.
		}
		oc, members := toPersistedCluster(projectID, nil, c, domain.ScopeCrossSource)
		if err := o.Store.CreateCluster(ctx, oc, members); err != nil {
			return created, fmt.Errorf("persisting cross-source cluster: %w", err)
		}
		created++
	}
	return created, nil
}

// lockedRecordSourceIDs returns the set of record_source ids covered by
// any currently-locked cluster in the project.
func (o *Orchestrator) lockedRecordSourceIDs(ctx context.Context, projectID domain.ID) (map[domain.ID]bool, error) {
	clusters, err := o.Store.GetClustersByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading clusters: %w", err)
	}
	out := make(map[domain.ID]bool)
	for _, c := range clusters {
		if !c.Locked {
			continue
		}
		members, err := o.Store.GetClusterMembers(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("loading cluster members: %w", err)
		}
		for _, m := range members {
			out[m.RecordSourceID] = true
		}
	}
	return out, nil
}

// Preview computes the overlap snapshot a real manual run would
// produce, without any writes.
type Preview struct {
	WithinSourceCount   int
	CrossSourceCount    int
	UniqueOverlapPapers int
	Clusters            []cluster.DetectedCluster
}

// PreviewOverlap runs the engine read-only over every record_source in
// the project.
func (o *Orchestrator) PreviewOverlap(ctx context.Context, projectID domain.ID, cfg domain.OverlapConfig) (Preview, error) {
	recordSources, err := o.Store.GetRecordSourcesByProject(ctx, projectID)
	if err != nil {
		return Preview{}, fmt.Errorf("loading record sources: %w", err)
	}
	records := toOverlapRecordsMixed(recordSources)
	detected := cluster.Detect(records, cfg)

	preview := Preview{Clusters: detected}
	for _, c := range detected {
		if len(distinctSources(c.Records)) >= 2 {
			preview.CrossSourceCount++
		} else {
			preview.WithinSourceCount++
		}
		preview.UniqueOverlapPapers += len(c.Records) - 1
	}
	return preview, nil
}

func toOverlapRecords(recordSources []domain.RecordSource, sourceID domain.ID) []cluster.OverlapRecord {
	out := make([]cluster.OverlapRecord, len(recordSources))
	for i, rs := range recordSources {
		out[i] = overlapRecordFromRecordSource(rs, sourceID)
	}
	return out
}

func toOverlapRecordsMixed(recordSources []domain.RecordSource) []cluster.OverlapRecord {
	out := make([]cluster.OverlapRecord, len(recordSources))
	for i, rs := range recordSources {
		out[i] = overlapRecordFromRecordSource(rs, rs.SourceID)
	}
	return out
}

func overlapRecordFromRecordSource(rs domain.RecordSource, sourceID domain.ID) cluster.OverlapRecord {
	title := rawdata.StringValue(rs.RawData, "title")
	doi := rawdata.String(rs.RawData, "doi")
	pmid := rawdata.String(rs.RawData, "pmid")
	year := rawdata.StringValue(rs.RawData, "year")
	volume := rawdata.StringValue(rs.RawData, "volume")
	abstract := rawdata.StringValue(rs.RawData, "abstract")
	authors := rawdata.Authors(rs.RawData)

	return cluster.BuildOverlapRecord(rs.ID, sourceID, title, doi, pmid, year, authors, volume, len(abstract))
}

func distinctSources(records []cluster.OverlapRecord) map[domain.ID]bool {
	out := make(map[domain.ID]bool)
	for _, r := range records {
		out[r.SourceID] = true
	}
	return out
}

func toPersistedCluster(projectID domain.ID, dedupJobID *domain.ID, c cluster.DetectedCluster, scope domain.ClusterScope) (domain.OverlapCluster, []domain.OverlapClusterMember) {
	rep := cluster.SelectRepresentative(c.Records)
	oc := domain.OverlapCluster{
		ProjectID:       projectID,
		DedupJobID:      dedupJobID,
		Scope:           scope,
		MatchTier:       c.Tier,
		MatchBasis:      c.MatchBasis,
		MatchReason:     c.MatchReason,
		SimilarityScore: c.SimilarityScore,
		Origin:          domain.OriginAuto,
	}
	members := make([]domain.OverlapClusterMember, len(c.Records))
	for i, r := range c.Records {
		role := domain.RoleDuplicate
		if r.RecordSourceID == rep.RecordSourceID {
			role = domain.RoleCanonical
		}
		members[i] = domain.OverlapClusterMember{
			RecordSourceID: r.RecordSourceID,
			SourceID:       r.SourceID,
			Role:           role,
			AddedBy:        domain.AddedByAuto,
		}
	}
	return oc, members
}

// ComputeOverlapMatrix builds the symmetric N×N cross-source overlap
// matrix (cell [i][j] = number of cross_source clusters containing both
// sources, diagonal always 0), given the currently persisted clusters
// and their members. It returns the matrix only.
func ComputeOverlapMatrix(sourceIDs []domain.ID, clusters []domain.OverlapCluster, membersByCluster map[domain.ID][]domain.OverlapClusterMember) [][]int {
	index := make(map[domain.ID]int, len(sourceIDs))
	for i, id := range sourceIDs {
		index[id] = i
	}
	matrix := make([][]int, len(sourceIDs))
	for i := range matrix {
		matrix[i] = make([]int, len(sourceIDs))
	}

	for _, c := range clusters {
		if c.Scope != domain.ScopeCrossSource {
			continue
		}
		present := make(map[int]bool)
		for _, m := range membersByCluster[c.ID] {
			if i, ok := index[m.SourceID]; ok {
				present[i] = true
			}
		}
		idxs := make([]int, 0, len(present))
		for i := range present {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				matrix[idxs[a]][idxs[b]]++
				matrix[idxs[b]][idxs[a]]++
			}
		}
	}
	return matrix
}

// SourceCombination is one top-N entry: a set of source ids that
// co-occur in at least one cross-source cluster, and how many clusters
// they co-occur in.
type SourceCombination struct {
	SourceIDs []domain.ID
	Count     int
}

// ComputeTopIntersections returns the top N source-id combinations by
// cluster count, descending; ties are broken by the first-encountered
// combination (stable sort), matching "ties broken arbitrarily" in the
// spec.
func ComputeTopIntersections(clusters []domain.OverlapCluster, membersByCluster map[domain.ID][]domain.OverlapClusterMember, topN int) []SourceCombination {
	counts := make(map[string]int)
	sets := make(map[string][]domain.ID)
	var order []string

	for _, c := range clusters {
		if c.Scope != domain.ScopeCrossSource {
			continue
		}
		present := make(map[domain.ID]bool)
		for _, m := range membersByCluster[c.ID] {
			present[m.SourceID] = true
		}
		if len(present) < 2 {
			continue
		}
		ids := make([]domain.ID, 0, len(present))
		for id := range present {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		key := combinationKey(ids)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			sets[key] = ids
		}
		counts[key]++
	}

	combos := make([]SourceCombination, 0, len(order))
	for _, key := range order {
		combos = append(combos, SourceCombination{SourceIDs: sets[key], Count: counts[key]})
	}
	sort.SliceStable(combos, func(i, j int) bool { return combos[i].Count > combos[j].Count })

	if topN > 0 && len(combos) > topN {
		combos = combos[:topN]
	}
	return combos
}

func combinationKey(ids []domain.ID) string {
	s := ""
	for _, id := range ids {
		s += id.String() + ","
	}
	return s
}

// InternalOverlapCount returns the count of members with role=duplicate
// inside within_source clusters for one source — the "internal_overlaps"
// figure of the per-source visual-summary total.
func InternalOverlapCount(sourceID domain.ID, clusters []domain.OverlapCluster, membersByCluster map[domain.ID][]domain.OverlapClusterMember) int {
	count := 0
	for _, c := range clusters {
		if c.Scope != domain.ScopeWithinSource {
			continue
		}
		for _, m := range membersByCluster[c.ID] {
			if m.SourceID == sourceID && m.Role == domain.RoleDuplicate {
				count++
			}
		}
	}
	return count
}
