package matchkey

import (
	"testing"

	"litreview-dedupe/internal/domain"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestComputeDOIFirstStrictPrefersDOI(t *testing.T) {
	res := Compute(strp("a study of things"), strp("smith"), intp(2019), strp("10.1/xyz"), domain.PresetDOIFirstStrict)
	if res.Basis != "doi" || res.Key == nil || *res.Key != "doi:10.1/xyz" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestComputeDOIFirstStrictFallsBackToTitleAuthorYear(t *testing.T) {
	res := Compute(strp("a study of things"), strp("smith"), intp(2019), nil, domain.PresetDOIFirstStrict)
	if res.Basis != "title_author_year" || res.Key == nil || *res.Key != "tay:a study of things|smith|2019" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestComputeDOIFirstMediumFallsBackToTitleYear(t *testing.T) {
	res := Compute(strp("a study of things"), strp("smith"), intp(2019), nil, domain.PresetDOIFirstMedium)
	if res.Basis != "title_year" || res.Key == nil || *res.Key != "ty:a study of things|2019" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestComputeStrictIgnoresDOI(t *testing.T) {
	res := Compute(strp("a study of things"), strp("smith"), intp(2019), strp("10.1/xyz"), domain.PresetStrict)
	if res.Basis != "title_author_year" {
		t.Fatalf("strict must ignore doi, got basis=%s", res.Basis)
	}
}

func TestComputeMediumMissingYearIsNone(t *testing.T) {
	res := Compute(strp("a study of things"), strp("smith"), nil, nil, domain.PresetMedium)
	if res.Basis != "none" || res.Key != nil {
		t.Fatalf("expected none, got %+v", res)
	}
}

func TestComputeLooseIgnoresYear(t *testing.T) {
	res := Compute(strp("a study of things"), strp("smith"), nil, nil, domain.PresetLoose)
	if res.Basis != "title_author" || res.Key == nil || *res.Key != "ta:a study of things|smith" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestComputeMissingTitleAlwaysNone(t *testing.T) {
	for _, preset := range []domain.StrategyPreset{
		domain.PresetDOIFirstStrict, domain.PresetDOIFirstMedium,
		domain.PresetStrict, domain.PresetMedium, domain.PresetLoose,
	} {
		res := Compute(nil, strp("smith"), intp(2019), nil, preset)
		if res.Basis != "none" || res.Key != nil {
			t.Fatalf("preset %s: expected none without title, got %+v", preset, res)
		}
	}
}
