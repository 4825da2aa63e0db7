package domain

// DedupConfig is the resolved, preset-independent shape every
// MatchStrategy boils down to before it reaches the cluster engine. Legacy
// presets are expanded into one of these at load time so the clustering
// code never has to branch on preset name.
type DedupConfig struct {
	UseDOI             bool    `yaml:"use_doi" json:"use_doi"`
	UsePMID            bool    `yaml:"use_pmid" json:"use_pmid"`
	UseTitleYear       bool    `yaml:"use_title_year" json:"use_title_year"`
	UseTitleAuthorYear bool    `yaml:"use_title_author_year" json:"use_title_author_year"`
	UseFuzzy           bool    `yaml:"use_fuzzy" json:"use_fuzzy"`
	FuzzyThreshold     float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	FuzzyAuthorCheck   bool    `yaml:"fuzzy_author_check" json:"fuzzy_author_check"`
}

// presetTable mirrors the fixed tier configuration behind each legacy
// preset name. Custom strategies bypass this table entirely and carry
// their own DedupConfig.
var presetTable = map[StrategyPreset]DedupConfig{
	PresetDOIFirstStrict: {
		UseDOI: true, UsePMID: true, UseTitleYear: false, UseTitleAuthorYear: true,
		UseFuzzy: false, FuzzyThreshold: 0.85, FuzzyAuthorCheck: true,
	},
	PresetDOIFirstMedium: {
		UseDOI: true, UsePMID: true, UseTitleYear: true, UseTitleAuthorYear: false,
		UseFuzzy: false, FuzzyThreshold: 0.85, FuzzyAuthorCheck: true,
	},
	PresetStrict: {
		UseDOI: false, UsePMID: false, UseTitleYear: false, UseTitleAuthorYear: true,
		UseFuzzy: false, FuzzyThreshold: 0.85, FuzzyAuthorCheck: true,
	},
	PresetMedium: {
		UseDOI: false, UsePMID: false, UseTitleYear: true, UseTitleAuthorYear: false,
		UseFuzzy: false, FuzzyThreshold: 0.85, FuzzyAuthorCheck: true,
	},
	PresetLoose: {
		UseDOI: false, UsePMID: false, UseTitleYear: true, UseTitleAuthorYear: false,
		UseFuzzy: false, FuzzyThreshold: 0.80, FuzzyAuthorCheck: false,
	},
}

// ResolveDedupConfig returns the tier configuration a strategy should run
// with: the custom config if the strategy carries one, otherwise the
// preset's fixed table entry.
func ResolveDedupConfig(s MatchStrategy) DedupConfig {
	if s.Preset == PresetCustom && s.Config != nil {
		return *s.Config
	}
	if cfg, ok := presetTable[s.Preset]; ok {
		return cfg
	}
	return presetTable[PresetMedium]
}

// OverlapConfig controls the overlap-detection engine, independent of any
// dedup strategy. Unlike DedupConfig it is not preset-driven: every
// project-level overlap run and manual preview carries one explicit
// instance.
type OverlapConfig struct {
	SelectedFields   []string `yaml:"selected_fields" json:"selected_fields"`
	FuzzyEnabled     bool     `yaml:"fuzzy_enabled" json:"fuzzy_enabled"`
	FuzzyThreshold   float64  `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	YearTolerance    int      `yaml:"year_tolerance" json:"year_tolerance"`
}

// KnownOverlapFields enumerates every field the overlap UI is allowed to
// let a reviewer toggle on or off for the blocking/matching passes.
var KnownOverlapFields = []string{
	"title", "year", "first_author", "volume", "doi", "pmid",
}

// DefaultOverlapConfig returns the engine's out-of-the-box configuration:
// all known fields selected, fuzzy matching off, zero year tolerance.
func DefaultOverlapConfig() OverlapConfig {
	fields := make([]string, len(KnownOverlapFields))
	copy(fields, KnownOverlapFields)
	return OverlapConfig{
		SelectedFields: fields,
		FuzzyEnabled:   false,
		FuzzyThreshold: 0.93,
		YearTolerance:  0,
	}
}

// HasField reports whether field is among the reviewer-selected fields
// for this run.
func (c OverlapConfig) HasField(field string) bool {
	for _, f := range c.SelectedFields {
		if f == field {
			return true
		}
	}
	return false
}
