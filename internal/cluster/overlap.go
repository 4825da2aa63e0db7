package cluster

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/normalize"
	"litreview-dedupe/internal/unionfind"
)

const titlePrefixLen = 15

// OverlapRecord is the normalized view of one record_source the overlap
// engine blocks and matches on. TitlePrefix is precomputed once so every
// blocking pass reuses it instead of re-slicing NormTitle.
type OverlapRecord struct {
	RecordSourceID uuid.UUID
	SourceID       uuid.UUID
	DOI            *string
	PMID           *string
	NormTitle      string
	TitlePrefix    string
	Year           *int
	FirstAuthor    *string
	AllAuthors     []string
	NormVolume     *string
	AbstractLen    int
}

// BuildOverlapRecord derives an OverlapRecord from raw, already-fetched
// fields. It is the overlap-engine equivalent of the precomputed columns
// a dedup-mode SourceRecord carries, kept separate because overlap
// detection uses its own title normalizer (see normalize.TitleForOverlap).
func BuildOverlapRecord(recordSourceID, sourceID uuid.UUID, title string, doi, pmid *string, rawYear string, authorsRaw any, rawVolume string, abstractLen int) OverlapRecord {
	normTitle := normalize.TitleForOverlap(title)
	rec := OverlapRecord{
		RecordSourceID: recordSourceID,
		SourceID:       sourceID,
		DOI:            doi,
		PMID:           pmid,
		NormTitle:      normTitle,
		TitlePrefix:    prefix(normTitle, titlePrefixLen),
		AllAuthors:     normalize.Authors(authorsRaw),
		AbstractLen:    abstractLen,
	}
	if y, ok := normalize.ExtractYear(rawYear); ok {
		rec.Year = &y
	}
	if fa, ok := normalize.FirstAuthorLast(authorsRaw); ok {
		rec.FirstAuthor = &fa
	}
	if v, ok := normalize.Volume(rawVolume); ok {
		rec.NormVolume = &v
	}
	return rec
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// DetectedCluster is one group of overlapping record sources found by
// the overlap engine. Groups of size 1 never appear here.
type DetectedCluster struct {
	Records         []OverlapRecord
	Tier            int
	MatchBasis      string
	MatchReason     string
	SimilarityScore *float64
}

// Detect runs the 5-tier overlap detector over records under cfg.
// Returns one DetectedCluster per group with two or more members, sorted
// by the lexicographically smallest member id for determinism.
func Detect(records []OverlapRecord, cfg domain.OverlapConfig) []DetectedCluster {
	if len(records) < 2 {
		return nil
	}

	ids := make([]uuid.UUID, len(records))
	recMap := make(map[uuid.UUID]OverlapRecord, len(records))
	for i, r := range records {
		ids[i] = r.RecordSourceID
		recMap[r.RecordSourceID] = r
	}
	uf := unionfind.New(ids)

	// Pass 1: exact DOI / PMID blocks.
	if cfg.HasField("doi") {
		blockAndUnion(uf, records, 1, "doi", func(r OverlapRecord) (string, bool) {
			if r.DOI == nil || *r.DOI == "" {
				return "", false
			}
			return *r.DOI, true
		}, func(k string) string { return fmt.Sprintf("Exact DOI match: %s", k) })
	}
	if cfg.HasField("pmid") {
		blockAndUnion(uf, records, 1, "pmid", func(r OverlapRecord) (string, bool) {
			if r.PMID == nil || *r.PMID == "" {
				return "", false
			}
			return *r.PMID, true
		}, func(k string) string { return fmt.Sprintf("Exact PMID match: %s", k) })
	}

	// Pass 2: title-year blocking, tiers 2/3/4 inside each block.
	if cfg.HasField("title") {
		buckets := make(map[string][]uuid.UUID)
		var order []string
		useYear := cfg.HasField("year")
		for _, r := range records {
			if r.TitlePrefix == "" {
				continue
			}
			var key string
			if r.Year != nil {
				key = fmt.Sprintf("%s|%d", r.TitlePrefix, *r.Year)
			} else if !useYear {
				key = r.TitlePrefix + "|"
			} else {
				continue
			}
			if _, ok := buckets[key]; !ok {
				order = append(order, key)
			}
			buckets[key] = append(buckets[key], r.RecordSourceID)
		}
		for _, key := range order {
			bucket := buckets[key]
			if len(bucket) < 2 {
				continue
			}
			matchTitleYearBlock(bucket, recMap, uf, cfg)
		}
	}

	// Pass 3: fuzzy title blocking by prefix only.
	if cfg.FuzzyEnabled && cfg.HasField("title") {
		prefixBuckets := make(map[string][]uuid.UUID)
		var order []string
		for _, r := range records {
			if r.TitlePrefix == "" {
				continue
			}
			if _, ok := prefixBuckets[r.TitlePrefix]; !ok {
				order = append(order, r.TitlePrefix)
			}
			prefixBuckets[r.TitlePrefix] = append(prefixBuckets[r.TitlePrefix], r.RecordSourceID)
		}
		for _, key := range order {
			bucket := prefixBuckets[key]
			if len(bucket) < 2 {
				continue
			}
			matchFuzzyBlock(bucket, recMap, uf, cfg)
		}
	}

	groups := uf.Groups()
	var clusters []DetectedCluster
	for root, memberIDs := range groups {
		if len(memberIDs) < 2 {
			continue
		}
		info := uf.Info(root)
		members := make([]OverlapRecord, len(memberIDs))
		for i, id := range memberIDs {
			members[i] = recMap[id]
		}
		clusters = append(clusters, DetectedCluster{
			Records:         members,
			Tier:            info.Tier,
			MatchBasis:      info.Basis,
			MatchReason:     info.Reason,
			SimilarityScore: info.Score,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return minMemberID(clusters[i]) < minMemberID(clusters[j])
	})
	return clusters
}

func minMemberID(c DetectedCluster) string {
	min := c.Records[0].RecordSourceID.String()
	for _, r := range c.Records[1:] {
		if s := r.RecordSourceID.String(); s < min {
			min = s
		}
	}
	return min
}

func blockAndUnion(uf *unionfind.UnionFind, records []OverlapRecord, tier int, basis string, keyFn func(OverlapRecord) (string, bool), reasonFn func(string) string) {
	buckets := make(map[string][]uuid.UUID)
	var order []string
	for _, r := range records {
		key, ok := keyFn(r)
		if !ok {
			continue
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], r.RecordSourceID)
	}
	for _, key := range order {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}
		reason := reasonFn(key)
		first := members[0]
		for _, other := range members[1:] {
			uf.Union(first, other, tier, basis, reason, nil)
		}
	}
}

// matchTitleYearBlock tries tiers 2, 3 and 4 in order for every pair
// inside one title+year bucket that is not already clustered from Pass 1.
func matchTitleYearBlock(bucket []uuid.UUID, recMap map[uuid.UUID]OverlapRecord, uf *unionfind.UnionFind, cfg domain.OverlapConfig) {
	useAuthor := cfg.HasField("first_author")
	useVolume := cfg.HasField("volume")

	for i := 0; i < len(bucket); i++ {
		for j := i + 1; j < len(bucket); j++ {
			ra, rb := recMap[bucket[i]], recMap[bucket[j]]
			if uf.Find(ra.RecordSourceID) == uf.Find(rb.RecordSourceID) {
				continue
			}
			if ra.NormTitle == "" || ra.NormTitle != rb.NormTitle {
				continue
			}

			authorOK := !useAuthor || (ra.FirstAuthor != nil && rb.FirstAuthor != nil && *ra.FirstAuthor == *rb.FirstAuthor)
			volumeOK := !useVolume || ra.NormVolume == nil || rb.NormVolume == nil || *ra.NormVolume == *rb.NormVolume

			switch {
			case authorOK && volumeOK:
				reason := fmt.Sprintf("Same title, year, first author, volume: %q", ra.NormTitle)
				uf.Union(ra.RecordSourceID, rb.RecordSourceID, 2, "title_year_author_volume", reason, nil)
			case authorOK:
				reason := fmt.Sprintf("Same title, year, first author: %q", ra.NormTitle)
				uf.Union(ra.RecordSourceID, rb.RecordSourceID, 3, "title_year_author", reason, nil)
			default:
				reason := fmt.Sprintf("Same title and year: %q", ra.NormTitle)
				uf.Union(ra.RecordSourceID, rb.RecordSourceID, 4, "title_year", reason, nil)
			}
		}
	}
}

// matchFuzzyBlock tries tier 5 fuzzy matching for every pair inside one
// title-prefix bucket that is not already clustered.
func matchFuzzyBlock(bucket []uuid.UUID, recMap map[uuid.UUID]OverlapRecord, uf *unionfind.UnionFind, cfg domain.OverlapConfig) {
	for i := 0; i < len(bucket); i++ {
		for j := i + 1; j < len(bucket); j++ {
			ra, rb := recMap[bucket[i]], recMap[bucket[j]]
			if uf.Find(ra.RecordSourceID) == uf.Find(rb.RecordSourceID) {
				continue
			}
			if ra.NormTitle == "" || rb.NormTitle == "" {
				continue
			}
			if ra.Year != nil && rb.Year != nil {
				diff := *ra.Year - *rb.Year
				if diff < 0 {
					diff = -diff
				}
				if diff > cfg.YearTolerance {
					continue
				}
			}

			score := TokenSetRatio(ra.NormTitle, rb.NormTitle)
			if score < cfg.FuzzyThreshold {
				continue
			}
			if !authorsOverlap(ra.AllAuthors, rb.AllAuthors) {
				continue
			}

			reason := fmt.Sprintf("Fuzzy title similarity %.2f: %q", score, ra.NormTitle)
			s := score
			uf.Union(ra.RecordSourceID, rb.RecordSourceID, 5, "fuzzy_title_author", reason, &s)
		}
	}
}

// SelectRepresentative picks the canonical member of a detected cluster:
// has-DOI beats has-PMID beats has-title beats longer abstract, with a
// deterministic smallest-id tie-break.
func SelectRepresentative(records []OverlapRecord) OverlapRecord {
	best := records[0]
	bestScore := overlapRichness(best)
	for _, r := range records[1:] {
		s := overlapRichness(r)
		if richnessGreater(s, bestScore) {
			best = r
			bestScore = s
		}
	}
	return best
}

type richness struct {
	hasDOI, hasPMID, hasTitle int
	abstractLen               int
	idTieBreak                string
}

func overlapRichness(r OverlapRecord) richness {
	has := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	return richness{
		hasDOI:      has(r.DOI != nil && *r.DOI != ""),
		hasPMID:     has(r.PMID != nil && *r.PMID != ""),
		hasTitle:    has(r.NormTitle != ""),
		abstractLen: r.AbstractLen,
		idTieBreak:  r.RecordSourceID.String(),
	}
}

// richnessGreater reports whether a strictly outranks b. On a full tie
// the smaller UUID string wins, matching the reference implementation's
// tie-break.
func richnessGreater(a, b richness) bool {
	if a.hasDOI != b.hasDOI {
		return a.hasDOI > b.hasDOI
	}
	if a.hasPMID != b.hasPMID {
		return a.hasPMID > b.hasPMID
	}
	if a.hasTitle != b.hasTitle {
		return a.hasTitle > b.hasTitle
	}
	if a.abstractLen != b.abstractLen {
		return a.abstractLen > b.abstractLen
	}
	return a.idTieBreak < b.idTieBreak
}
