// Package matchkey computes the legacy single-string dedup key used by
// the doi_first_strict, doi_first_medium, strict, medium and loose
// presets. It is independent of the tiered cluster engine in
// internal/cluster, which supersedes it for custom strategies but keeps
// it around for backward-compatible projects that still select a preset
// by name.
package matchkey

import (
	"fmt"

	"litreview-dedupe/internal/domain"
)

// Result is the outcome of computing a match key for one record_source.
type Result struct {
	// Key is nil when no key could be computed and the record should
	// stay isolated (its own singleton cluster).
	Key   *string
	Basis string
}

// Compute derives (match_key, match_basis) from normalized fields under
// the given preset. normTitle and normFirstAuthor must already be
// normalized (see internal/normalize); doi must already be lowercased.
func Compute(normTitle, normFirstAuthor *string, year *int, doi *string, preset domain.StrategyPreset) Result {
	var doiKey *string
	if doi != nil && *doi != "" {
		k := fmt.Sprintf("doi:%s", *doi)
		doiKey = &k
	}

	switch preset {
	case domain.PresetDOIFirstStrict, domain.PresetDOIFirstMedium:
		if doiKey != nil {
			return Result{Key: doiKey, Basis: "doi"}
		}
		if preset == domain.PresetDOIFirstStrict {
			if normTitle != nil && normFirstAuthor != nil && year != nil {
				k := fmt.Sprintf("tay:%s|%s|%d", *normTitle, *normFirstAuthor, *year)
				return Result{Key: &k, Basis: "title_author_year"}
			}
		} else {
			if normTitle != nil && year != nil {
				k := fmt.Sprintf("ty:%s|%d", *normTitle, *year)
				return Result{Key: &k, Basis: "title_year"}
			}
		}
		return Result{Basis: "none"}

	case domain.PresetStrict:
		if normTitle != nil && normFirstAuthor != nil && year != nil {
			k := fmt.Sprintf("tay:%s|%s|%d", *normTitle, *normFirstAuthor, *year)
			return Result{Key: &k, Basis: "title_author_year"}
		}
		return Result{Basis: "none"}

	case domain.PresetMedium:
		if normTitle != nil && year != nil {
			k := fmt.Sprintf("ty:%s|%d", *normTitle, *year)
			return Result{Key: &k, Basis: "title_year"}
		}
		return Result{Basis: "none"}

	case domain.PresetLoose:
		if normTitle != nil && normFirstAuthor != nil {
			k := fmt.Sprintf("ta:%s|%s", *normTitle, *normFirstAuthor)
			return Result{Key: &k, Basis: "title_author"}
		}
		return Result{Basis: "none"}
	}

	return Result{Basis: "none"}
}
