package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"litreview-dedupe/internal/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestStore() *Store {
	return New(fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
}

func TestCreateRecordAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore()
	projectID := domain.NewID()
	rec, err := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID, Title: strp("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain.ZeroID(rec.ID) {
		t.Fatal("expected a generated id")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("expected a stamped CreatedAt")
	}
}

func TestFindRecordByMatchKeyScopedToProject(t *testing.T) {
	s := newTestStore()
	p1, p2 := domain.NewID(), domain.NewID()
	key := "doi:10.1/x"
	rec, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: p1, MatchKey: &key})

	found, ok, err := s.FindRecordByMatchKey(context.Background(), p1, key)
	if err != nil || !ok || found.ID != rec.ID {
		t.Fatalf("expected to find record in p1, got ok=%v err=%v", ok, err)
	}

	_, ok, err = s.FindRecordByMatchKey(context.Background(), p2, key)
	if err != nil || ok {
		t.Fatalf("expected no match in p2, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateRecordSourceLinksChunksAcrossMaxBatchParams(t *testing.T) {
	s := newTestStore()
	sourceID := domain.NewID()

	const n = MaxBatchParams*2 + 5 // force three chunks
	updates := make(map[uuid.UUID]uuid.UUID, n)
	for i := 0; i < n; i++ {
		rs := domain.RecordSource{ID: domain.NewID(), SourceID: sourceID, RecordID: domain.NewID()}
		s.SeedRecordSource(rs)
		updates[rs.ID] = domain.NewID()
	}

	if err := s.UpdateRecordSourceLinks(context.Background(), updates); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetRecordSourcesBySource(context.Background(), sourceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d record sources, got %d", n, len(got))
	}
	for _, rs := range got {
		if rs.RecordID != updates[rs.ID] {
			t.Fatalf("record_source %s was not rewritten to its new record id", rs.ID)
		}
	}
}

func TestUpdateRecordSourceLinksUnknownIDFails(t *testing.T) {
	s := newTestStore()
	err := s.UpdateRecordSourceLinks(context.Background(), map[uuid.UUID]uuid.UUID{domain.NewID(): domain.NewID()})
	if err == nil {
		t.Fatal("expected an error for an unknown record_source id")
	}
}

func TestDeleteOrphanRecordsRemovesOnlyUnreferenced(t *testing.T) {
	s := newTestStore()
	projectID := domain.NewID()

	kept, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	orphan, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	s.SeedRecordSource(domain.RecordSource{ID: domain.NewID(), RecordID: kept.ID})

	n, err := s.DeleteOrphanRecords(context.Background(), projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 orphan deleted, got %d", n)
	}
	if _, err := s.GetRecord(context.Background(), orphan.ID); err == nil {
		t.Fatal("expected orphan record to be gone")
	}
	if _, err := s.GetRecord(context.Background(), kept.ID); err != nil {
		t.Fatal("expected referenced record to survive")
	}
}

func TestSaveStrategyDeactivatesPreviousActiveInSameProject(t *testing.T) {
	s := newTestStore()
	projectID := domain.NewID()

	first, _ := s.SaveStrategy(context.Background(), domain.MatchStrategy{ProjectID: projectID, Preset: domain.PresetStrict, Active: true})
	second, err := s.SaveStrategy(context.Background(), domain.MatchStrategy{ProjectID: projectID, Preset: domain.PresetLoose, Active: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, err := s.GetActiveStrategy(context.Background(), projectID)
	if err != nil || active.ID != second.ID {
		t.Fatalf("expected second strategy active, got %+v err=%v", active, err)
	}

	refetchedFirst, err := s.GetStrategy(context.Background(), first.ID)
	if err != nil || refetchedFirst.Active {
		t.Fatalf("expected first strategy deactivated, got %+v err=%v", refetchedFirst, err)
	}
}

func TestDeleteClustersByScopeGatesOnSource(t *testing.T) {
	s := newTestStore()
	projectID := domain.NewID()
	sourceA, sourceB := domain.NewID(), domain.NewID()

	withinA := domain.OverlapCluster{ProjectID: projectID, Scope: domain.ScopeWithinSource}
	mustCreateCluster(t, s, withinA, []domain.OverlapClusterMember{{RecordSourceID: domain.NewID(), SourceID: sourceA}})

	cross := domain.OverlapCluster{ProjectID: projectID, Scope: domain.ScopeCrossSource}
	mustCreateCluster(t, s, cross, []domain.OverlapClusterMember{
		{RecordSourceID: domain.NewID(), SourceID: sourceA},
		{RecordSourceID: domain.NewID(), SourceID: sourceB},
	})

	n, err := s.DeleteClustersByScope(context.Background(), projectID, domain.ScopeWithinSource, &sourceA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly the within-source, single-source cluster deleted, got %d", n)
	}

	remaining, err := s.GetClustersByProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Scope != domain.ScopeCrossSource {
		t.Fatalf("expected only the cross-source cluster to survive, got %+v", remaining)
	}
}

func TestDeleteClustersByScopeSkipsLocked(t *testing.T) {
	s := newTestStore()
	projectID := domain.NewID()
	sourceID := domain.NewID()

	locked := domain.OverlapCluster{ProjectID: projectID, Scope: domain.ScopeWithinSource, Locked: true}
	mustCreateCluster(t, s, locked, []domain.OverlapClusterMember{{RecordSourceID: domain.NewID(), SourceID: sourceID}})

	n, err := s.DeleteClustersByScope(context.Background(), projectID, domain.ScopeWithinSource, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected locked cluster to survive, deleted %d", n)
	}
}

func TestAppendMatchLogsIsCumulative(t *testing.T) {
	s := newTestStore()
	if err := s.AppendMatchLogs(context.Background(), []domain.MatchLog{{Action: domain.ActionMerged}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendMatchLogs(context.Background(), []domain.MatchLog{{Action: domain.ActionCreated}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logs := s.MatchLogs()
	if len(logs) != 2 {
		t.Fatalf("expected 2 accumulated match logs, got %d", len(logs))
	}
}

func TestStaleJobsFiltersByStatusAndCutoff(t *testing.T) {
	s := newTestStore()
	old := domain.DedupJob{Status: domain.DedupRunning}
	created, _ := s.CreateDedupJob(context.Background(), old)

	done := domain.DedupJob{Status: domain.DedupCompleted}
	s.CreateDedupJob(context.Background(), done)

	stale, err := s.StaleJobs(context.Background(), time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).Unix())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != created.ID {
		t.Fatalf("expected only the running job to be stale, got %+v", stale)
	}
}

func TestExportImportRoundTrips(t *testing.T) {
	s := newTestStore()
	projectID := domain.NewID()
	rec, err := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID, Title: strp("round trip")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := s.Export()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty snapshot")
	}

	restored := newTestStore()
	if err := restored.Import(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := restored.GetRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title == nil || *got.Title != "round trip" {
		t.Fatalf("expected restored record title, got %+v", got)
	}
}

func mustCreateCluster(t *testing.T, s *Store, cluster domain.OverlapCluster, members []domain.OverlapClusterMember) {
	t.Helper()
	if err := s.CreateCluster(context.Background(), cluster, members); err != nil {
		t.Fatalf("unexpected error creating cluster: %v", err)
	}
}

func strp(s string) *string { return &s }
