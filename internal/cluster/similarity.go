package cluster

import (
	"sort"
	"strings"
)

// TokenSetRatio reproduces rapidfuzz's token_set_ratio: a similarity
// score in [0, 1] that is insensitive to word order and to one title
// containing extra tokens the other lacks (e.g. a subtitle). It is the
// only similarity measure the tier-fuzzy passes use, because bibliographic
// titles frequently differ only in word order or an appended subtitle
// that a naive edit-distance ratio would punish heavily.
//
// Algorithm: tokenize both strings, split into the shared token set and
// each side's unique remainder, then compare three reconstructed strings
// (shared-only, shared+remainder-a, shared+remainder-b) and return the
// best pairwise ratio. An exact token-set match (both remainders empty)
// always yields 1.0.
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)

	setA := toSet(tokensA)
	setB := toSet(tokensB)

	var intersection, diffA, diffB []string
	for t := range setA {
		if setB[t] {
			intersection = append(intersection, t)
		} else {
			diffA = append(diffA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			diffB = append(diffB, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(diffA)
	sort.Strings(diffB)

	sect := strings.Join(intersection, " ")
	combined1 := joinNonEmpty(sect, strings.Join(diffA, " "))
	combined2 := joinNonEmpty(sect, strings.Join(diffB, " "))

	if len(diffA) == 0 && len(diffB) == 0 {
		return 1.0
	}

	r1 := ratio(sect, combined1)
	r2 := ratio(sect, combined2)
	r3 := ratio(combined1, combined2)

	best := r1
	if r2 > best {
		best = r2
	}
	if r3 > best {
		best = r3
	}
	return best
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// ratio is rapidfuzz's normalized similarity ratio: 2*matches /
// (len(a)+len(b)), where matches is the length of the longest common
// subsequence of the two strings' runes (the indel distance's complement).
// Identical strings (including both empty) yield 1.0.
func ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	lenSum := len(ra) + len(rb)
	if lenSum == 0 {
		return 1.0
	}
	prev, cur := make([]int, len(rb)+1), make([]int, len(rb)+1)
	for i := range ra {
		for j := range rb {
			if ra[i] == rb[j] {
				cur[j+1] = prev[j] + 1
			} else if prev[j+1] >= cur[j] {
				cur[j+1] = prev[j+1]
			} else {
				cur[j+1] = cur[j]
			}
		}
		prev, cur = cur, prev
	}
	return float64(2*prev[len(rb)]) / float64(lenSum)
}
