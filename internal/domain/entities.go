package domain

import "time"

// ImportJobStatus is the lifecycle state of one file-import run.
type ImportJobStatus string

const (
	ImportPending             ImportJobStatus = "pending"
	ImportProcessing          ImportJobStatus = "processing"
	ImportCompleted           ImportJobStatus = "completed"
	ImportCompletedWithWarn   ImportJobStatus = "completed_with_warnings"
	ImportFailed              ImportJobStatus = "failed"
)

// DedupJobStatus is the lifecycle state of one clustering run (used for
// both dedup and overlap-detection background jobs; the orchestration
// layer distinguishes the two by which store methods it calls).
type DedupJobStatus string

const (
	DedupPending   DedupJobStatus = "pending"
	DedupRunning   DedupJobStatus = "running"
	DedupCompleted DedupJobStatus = "completed"
	DedupFailed    DedupJobStatus = "failed"
)

// MatchLogAction classifies what happened to a record_source during a
// dedup run.
type MatchLogAction string

const (
	ActionUnchanged MatchLogAction = "unchanged"
	ActionMerged    MatchLogAction = "merged"
	ActionSplit     MatchLogAction = "split"
	ActionCreated   MatchLogAction = "created"
)

// ClusterScope distinguishes clusters whose members all come from one
// source from clusters that span two or more.
type ClusterScope string

const (
	ScopeWithinSource ClusterScope = "within_source"
	ScopeCrossSource  ClusterScope = "cross_source"
)

// ClusterOrigin tracks provenance: purely algorithmic, purely manual, or
// algorithmic-then-user-edited.
type ClusterOrigin string

const (
	OriginAuto   ClusterOrigin = "auto"
	OriginManual ClusterOrigin = "manual"
	OriginMixed  ClusterOrigin = "mixed"
)

// MemberRole distinguishes the chosen canonical member of a cluster from
// the rest.
type MemberRole string

const (
	RoleCanonical MemberRole = "canonical"
	RoleDuplicate MemberRole = "duplicate"
)

// AddedBy records whether a cluster membership row was produced by the
// algorithm or attached by a reviewer.
type AddedBy string

const (
	AddedByAuto AddedBy = "auto"
	AddedByUser AddedBy = "user"
)

// User is an account that owns projects. Immutable after creation.
type User struct {
	ID        ID
	Email     string
	CreatedAt time.Time
}

// Project is the top-level container scoping every other entity.
type Project struct {
	ID        ID
	OwnerID   ID
	Name      string
	CreatedAt time.Time
}

// Source is a named bibliographic database within a project, e.g. "PubMed".
type Source struct {
	ID        ID
	ProjectID ID
	Name      string
	CreatedAt time.Time
}

// ImportJob is the one-shot lifecycle of parsing a single uploaded file.
type ImportJob struct {
	ID           ID
	ProjectID    ID
	SourceID     ID
	Filename     string
	FormatHint   string
	Status       ImportJobStatus
	ParsedCount  int
	Summary      string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// RecordSource is the immutable per-source assertion that a paper exists.
// RawData is never mutated after insert; RecordID is the only field a
// dedup run is permitted to rewrite.
type RecordSource struct {
	ID       ID
	SourceID ID
	RecordID ID

	RawData map[string]any

	NormTitle       *string
	NormFirstAuthor *string
	MatchYear       *int
	MatchDOI        *string

	CreatedAt time.Time
}

// Record is the canonical row representing one unique paper per project.
type Record struct {
	ID          ID
	ProjectID   ID
	MatchKey    *string
	MatchBasis  string
	Title       *string
	Abstract    *string
	Authors     []string
	Year        *int
	Journal     *string
	Volume      *string
	Issue       *string
	Pages       *string
	DOI         *string
	ISSN        *string
	Keywords    []string
	SourceFormat string
	CreatedAt   time.Time
}

// StrategyPreset names a legacy, fully-specified tier configuration.
type StrategyPreset string

const (
	PresetDOIFirstStrict StrategyPreset = "doi_first_strict"
	PresetDOIFirstMedium StrategyPreset = "doi_first_medium"
	PresetStrict         StrategyPreset = "strict"
	PresetMedium         StrategyPreset = "medium"
	PresetLoose          StrategyPreset = "loose"
	PresetCustom         StrategyPreset = "custom"
)

// MatchStrategy is a named, versioned clustering configuration. At most
// one strategy per project may be Active at any moment.
type MatchStrategy struct {
	ID        ID
	ProjectID ID
	Name      string
	Preset    StrategyPreset
	Config    *DedupConfig // non-nil only for Preset == custom
	Active    bool
	CreatedAt time.Time
}

// DedupJob is one run of the clustering engine under a chosen strategy.
type DedupJob struct {
	ID              ID
	ProjectID       ID
	StrategyID      ID
	Status          DedupJobStatus
	RecordsBefore   int
	RecordsAfter    int
	Merges          int
	ClustersCreated int
	ClustersDeleted int
	ErrorMsg        string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// MatchLog is an append-only audit row: where a record_source was, and
// where it went, during one dedup run.
type MatchLog struct {
	ID           ID
	DedupJobID   ID
	RecordSrcID  ID
	OldRecordID  ID
	NewRecordID  ID
	MatchKey     *string
	MatchBasis   string
	Action       MatchLogAction
	CreatedAt    time.Time
}

// OverlapCluster is a detected (or manually created) group of record
// sources judged to be the same paper.
type OverlapCluster struct {
	ID               ID
	ProjectID        ID
	DedupJobID       *ID
	Scope            ClusterScope
	MatchTier        int
	MatchBasis       string
	MatchReason      string
	SimilarityScore  *float64
	Origin           ClusterOrigin
	Locked           bool
	CreatedAt        time.Time
}

// OverlapClusterMember links one record_source into one OverlapCluster.
type OverlapClusterMember struct {
	ID             ID
	ClusterID      ID
	RecordSourceID ID
	SourceID       ID
	Role           MemberRole
	AddedBy        AddedBy
	Note           *string
	CreatedAt      time.Time
}
