// Package unionfind implements a disjoint-set data structure specialized
// for clustering bibliographic records by uuid.UUID. Path compression and
// union-by-rank keep Find/Union effectively O(1) amortized, so clustering
// a project of any realistic size stays linear in the number of pairwise
// unions the tier passes perform.
//
// Unlike a textbook union-find, every root also carries tier metadata: the
// most precise tier that ever united into it, and the basis/reason/score
// that earned that tier. Tier 1 beats tier 3 even if tier 3 unioned first,
// because the tier passes run in increasing (less precise) order and a
// later, weaker pass must never downgrade a root that tier 1 already
// explained.
package unionfind

import "github.com/google/uuid"

// TierInfo is the provenance recorded on a cluster's root: the most
// precise tier that caused any union into this set, plus a human
// readable basis/reason and an optional similarity score (tier fuzzy
// passes only).
type TierInfo struct {
	Tier   int
	Basis  string
	Reason string
	Score  *float64
}

// UnionFind is a disjoint-set over a fixed universe of ids, built once
// and mutated by Union calls. It is not safe for concurrent use; callers
// run one tier pass at a time.
type UnionFind struct {
	index  map[uuid.UUID]int
	ids    []uuid.UUID
	parent []int
	rank   []int
	info   []TierInfo
}

// New builds a union-find where every id starts in its own singleton
// set. Tier 0 with basis "none" is the sentinel for "not yet united".
func New(ids []uuid.UUID) *UnionFind {
	uf := &UnionFind{
		index:  make(map[uuid.UUID]int, len(ids)),
		ids:    make([]uuid.UUID, len(ids)),
		parent: make([]int, len(ids)),
		rank:   make([]int, len(ids)),
		info:   make([]TierInfo, len(ids)),
	}
	for i, id := range ids {
		uf.index[id] = i
		uf.ids[i] = id
		uf.parent[i] = i
		uf.info[i] = TierInfo{Tier: 0, Basis: "none"}
	}
	return uf
}

// Find returns the representative (root) id of the set containing x,
// compressing the path traversed along the way.
func (uf *UnionFind) Find(x uuid.UUID) uuid.UUID {
	i, ok := uf.index[x]
	if !ok {
		return x
	}
	return uf.ids[uf.findIdx(i)]
}

func (uf *UnionFind) findIdx(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]] // path halving
		i = uf.parent[i]
	}
	return i
}

// Union merges the sets containing a and b, attributing the merge to the
// given tier/basis/reason/score. Returns true if a and b were in
// different sets (a merge occurred) and false if they were already
// clustered together. A tier is "more precise" the lower its number; a
// root's recorded TierInfo is only overwritten when the incoming tier is
// strictly more precise than (or the root has not yet been touched by)
// whatever produced its current info; when the absorbed root's own info
// is the more precise of the two, the surviving root takes it over first.
func (uf *UnionFind) Union(a, b uuid.UUID, tier int, basis, reason string, score *float64) bool {
	ia, iaOk := uf.index[a]
	ib, ibOk := uf.index[b]
	if !iaOk || !ibOk {
		return false
	}
	ra, rb := uf.findIdx(ia), uf.findIdx(ib)
	if ra == rb {
		return false
	}

	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}

	if uf.info[rb].Tier != 0 && (uf.info[ra].Tier == 0 || uf.info[rb].Tier < uf.info[ra].Tier) {
		uf.info[ra] = uf.info[rb]
	}
	if uf.info[ra].Tier == 0 || tier < uf.info[ra].Tier {
		uf.info[ra] = TierInfo{Tier: tier, Basis: basis, Reason: reason, Score: score}
	}
	return true
}

// Info returns the TierInfo recorded on the root of x's set.
func (uf *UnionFind) Info(x uuid.UUID) TierInfo {
	i, ok := uf.index[x]
	if !ok {
		return TierInfo{Basis: "none"}
	}
	return uf.info[uf.findIdx(i)]
}

// Groups returns every set as a map from root id to its member ids, in
// the order ids were originally supplied within each group.
func (uf *UnionFind) Groups() map[uuid.UUID][]uuid.UUID {
	groups := make(map[uuid.UUID][]uuid.UUID)
	for i, id := range uf.ids {
		root := uf.ids[uf.findIdx(i)]
		groups[root] = append(groups[root], id)
	}
	return groups
}
