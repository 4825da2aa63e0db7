// Package cluster implements the tiered record-clustering engines: the
// dedup-mode engine (tiers 1a/1b DOI+PMID, 2a/2b title+year variants, 3
// fuzzy) that collapses a project's imported papers into canonical
// Records, and the overlap-mode engine (tiers 1-5, blocking-key driven)
// that detects cross-source duplicates without ever rewriting a Record.
// Both share the same union-find and token-set-ratio primitives but
// apply different tier tables, because the two features answer different
// questions: dedup picks ONE canonical row per paper, overlap only
// reports which rows look like the same paper.
package cluster

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/unionfind"
)

// SourceRecord is the flattened, precomputed view of one record_source
// that the dedup engine clusters. Every *string/*int field is expected to
// already be normalized (see internal/normalize) before this struct is
// built; the engine itself never normalizes anything.
type SourceRecord struct {
	ID              uuid.UUID
	OldRecordID     uuid.UUID
	NormTitle       *string
	NormFirstAuthor *string
	MatchYear       *int
	MatchDOI        *string
	PMID            *string
	Authors         []string
	HasAbstract     bool
}

// DedupCluster is one group of SourceRecords that the engine decided map
// to a single canonical record. Isolated sources (no match found) are
// represented as a single-member cluster with MatchTier 0.
type DedupCluster struct {
	Representative  SourceRecord
	Members         []SourceRecord
	MatchTier       int
	MatchBasis      string
	MatchReason     string
	SimilarityScore *float64
}

// Size reports the number of members, including the representative.
func (c DedupCluster) Size() int { return len(c.Members) }

// DedupPreview summarizes what a real dedup run would do, without any
// persistence side effects.
type DedupPreview struct {
	Clusters    []DedupCluster // only clusters with >1 member
	Isolated    []SourceRecord
	WouldMerge  int
	WouldRemain int
	Tier1Count  int
	Tier2Count  int
	Tier3Count  int
}

// ComputeDedupClusters groups sources into dedup clusters under cfg.
// Sources are sorted by id first so that every pass, and therefore the
// final cluster membership, is fully deterministic regardless of
// caller-supplied order.
func ComputeDedupClusters(sources []SourceRecord, cfg domain.DedupConfig) []DedupCluster {
	if len(sources) == 0 {
		return nil
	}

	sorted := make([]SourceRecord, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	ids := make([]uuid.UUID, len(sorted))
	byID := make(map[uuid.UUID]SourceRecord, len(sorted))
	for i, s := range sorted {
		ids[i] = s.ID
		byID[s.ID] = s
	}

	uf := unionfind.New(ids)

	// Pass 1a: exact DOI.
	if cfg.UseDOI {
		unionByKey(uf, sorted, 1, "tier1_doi", func(s SourceRecord) (string, bool) {
			if s.MatchDOI == nil || *s.MatchDOI == "" {
				return "", false
			}
			return *s.MatchDOI, true
		}, func(key string) string {
			return fmt.Sprintf("Exact DOI: %s", key)
		})
	}

	// Pass 1b: exact PMID.
	if cfg.UsePMID {
		unionByKey(uf, sorted, 1, "tier1_pmid", func(s SourceRecord) (string, bool) {
			if s.PMID == nil || *s.PMID == "" {
				return "", false
			}
			return *s.PMID, true
		}, func(key string) string {
			return fmt.Sprintf("Exact PMID: %s", key)
		})
	}

	// Pass 2a: exact title + year.
	if cfg.UseTitleYear {
		unionByKey(uf, sorted, 2, "tier2_title_year", func(s SourceRecord) (string, bool) {
			if s.NormTitle == nil || s.MatchYear == nil {
				return "", false
			}
			return fmt.Sprintf("%s|%d", *s.NormTitle, *s.MatchYear), true
		}, func(key string) string {
			return fmt.Sprintf("Exact title + year: %s", key)
		})
	}

	// Pass 2b: exact title + author + year.
	if cfg.UseTitleAuthorYear {
		unionByKey(uf, sorted, 2, "tier2_title_author_year", func(s SourceRecord) (string, bool) {
			if s.NormTitle == nil || s.NormFirstAuthor == nil || s.MatchYear == nil {
				return "", false
			}
			return fmt.Sprintf("%s|%s|%d", *s.NormTitle, *s.NormFirstAuthor, *s.MatchYear), true
		}, func(key string) string {
			return fmt.Sprintf("Exact title + author + year: %s", key)
		})
	}

	// Pass 3: fuzzy title similarity.
	if cfg.UseFuzzy {
		fuzzyUnionDedup(uf, sorted, cfg)
	}

	groups := uf.Groups()
	clusters := make([]DedupCluster, 0, len(groups))
	for root, memberIDs := range groups {
		sort.Slice(memberIDs, func(i, j int) bool {
			return memberIDs[i].String() < memberIDs[j].String()
		})
		members := make([]SourceRecord, len(memberIDs))
		for i, id := range memberIDs {
			members[i] = byID[id]
		}

		info := uf.Info(root)
		basis, reason := info.Basis, info.Reason
		if len(memberIDs) == 1 && info.Tier == 0 {
			basis, reason = "none", "No match found"
		}

		clusters = append(clusters, DedupCluster{
			Representative:  pickBestDedup(members),
			Members:         members,
			MatchTier:       info.Tier,
			MatchBasis:      basis,
			MatchReason:      reason,
			SimilarityScore: info.Score,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].Representative.ID.String() < clusters[j].Representative.ID.String()
	})
	return clusters
}

// PreviewDedup computes clusters and summarizes them without writing
// anything, for the dry-run preview endpoint.
func PreviewDedup(sources []SourceRecord, cfg domain.DedupConfig) DedupPreview {
	clusters := ComputeDedupClusters(sources, cfg)

	var duplicates []DedupCluster
	var isolated []SourceRecord
	wouldMerge := 0
	for _, c := range clusters {
		if c.Size() > 1 {
			duplicates = append(duplicates, c)
			wouldMerge += c.Size() - 1
		} else {
			isolated = append(isolated, c.Representative)
		}
	}

	preview := DedupPreview{
		Clusters:    duplicates,
		Isolated:    isolated,
		WouldMerge:  wouldMerge,
		WouldRemain: len(clusters),
	}
	for _, c := range duplicates {
		switch c.MatchTier {
		case 1:
			preview.Tier1Count++
		case 2:
			preview.Tier2Count++
		case 3:
			preview.Tier3Count++
		}
	}
	return preview
}

// unionByKey groups sources by the key keyFn derives (skipping sources
// with no key) and unions every member of a group with size >= 2 against
// the group's first id, attributing the tier/basis/reason to the merge.
func unionByKey(uf *unionfind.UnionFind, sources []SourceRecord, tier int, basis string, keyFn func(SourceRecord) (string, bool), reasonFn func(string) string) {
	groups := make(map[string][]uuid.UUID)
	var order []string
	for _, s := range sources {
		key, ok := keyFn(s)
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s.ID)
	}

	for _, key := range order {
		ids := groups[key]
		if len(ids) < 2 {
			continue
		}
		reason := reasonFn(key)
		first := ids[0]
		for _, other := range ids[1:] {
			uf.Union(first, other, tier, basis, reason, nil)
		}
	}
}

// fuzzyUnionDedup is tier 3: pairwise fuzzy title comparison between
// every candidate not already clustered together. O(n^2) — acceptable at
// the scale of one project's import, same as the reference it is
// grounded on.
func fuzzyUnionDedup(uf *unionfind.UnionFind, sources []SourceRecord, cfg domain.DedupConfig) {
	var candidates []SourceRecord
	for _, s := range sources {
		if s.NormTitle != nil {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) < 2 {
		return
	}

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if uf.Find(a.ID) == uf.Find(b.ID) {
				continue
			}
			score := TokenSetRatio(*a.NormTitle, *b.NormTitle)
			if score < cfg.FuzzyThreshold {
				continue
			}
			if cfg.FuzzyAuthorCheck && !authorsOverlap(a.Authors, b.Authors) {
				continue
			}
			reason := fmt.Sprintf("Fuzzy title match (%.0f%%): %q vs %q", score*100, *a.NormTitle, *b.NormTitle)
			s := score
			uf.Union(a.ID, b.ID, 3, "tier3_fuzzy", reason, &s)
		}
	}
}

// authorsOverlap reports whether a and b share at least one surname.
// Surnames are compared as-given; callers pass already-normalized lists.
func authorsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}

// pickBestDedup chooses the canonical representative of a cluster:
// has-DOI beats has-title beats has-abstract, with a deterministic
// lowest-id tie-break (members is already sorted by id ascending).
func pickBestDedup(members []SourceRecord) SourceRecord {
	best := members[0]
	bestScore := dedupRichness(best)
	for _, m := range members[1:] {
		s := dedupRichness(m)
		if s[0] > bestScore[0] || (s[0] == bestScore[0] && (s[1] > bestScore[1] || (s[1] == bestScore[1] && s[2] > bestScore[2]))) {
			best = m
			bestScore = s
		}
	}
	return best
}

func dedupRichness(s SourceRecord) [3]int {
	has := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	return [3]int{
		has(s.MatchDOI != nil && *s.MatchDOI != ""),
		has(s.NormTitle != nil && *s.NormTitle != ""),
		has(s.HasAbstract),
	}
}
