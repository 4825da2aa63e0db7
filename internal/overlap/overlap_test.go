package overlap

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/lock"
	"litreview-dedupe/internal/store/memstore"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func setup(t *testing.T) (*memstore.Store, *Orchestrator) {
	t.Helper()
	clock := fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := memstore.New(clock)
	o := New(s, lock.NewInMemory(), clock, silentLogger())
	return s, o
}

func rawRecord(title, doi, year string) map[string]any {
	return map[string]any{"title": title, "doi": doi, "year": year, "authors": []string{"Smith"}}
}

func TestRunWithinSourceDetectsDuplicateDOI(t *testing.T) {
	s, o := setup(t)
	projectID := domain.NewID()
	sourceID := domain.NewID()

	rec, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	s.SeedRecordSource(domain.RecordSource{ID: domain.NewID(), SourceID: sourceID, RecordID: rec.ID, RawData: rawRecord("A Paper", "10.1/z", "2020")})
	s.SeedRecordSource(domain.RecordSource{ID: domain.NewID(), SourceID: sourceID, RecordID: rec.ID, RawData: rawRecord("A Paper", "10.1/z", "2020")})

	cfg := domain.DefaultOverlapConfig()
	n, err := o.RunWithinSource(context.Background(), projectID, sourceID, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 within-source cluster, got %d", n)
	}

	clusters, err := s.GetClustersByProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clusters) != 1 || clusters[0].Scope != domain.ScopeWithinSource {
		t.Fatalf("expected 1 within-source cluster, got %+v", clusters)
	}
}

func TestRunWithinSourceRerunReplacesPriorClusters(t *testing.T) {
	s, o := setup(t)
	projectID := domain.NewID()
	sourceID := domain.NewID()
	rec, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	s.SeedRecordSource(domain.RecordSource{ID: domain.NewID(), SourceID: sourceID, RecordID: rec.ID, RawData: rawRecord("Paper", "10.1/a", "2020")})
	s.SeedRecordSource(domain.RecordSource{ID: domain.NewID(), SourceID: sourceID, RecordID: rec.ID, RawData: rawRecord("Paper", "10.1/a", "2020")})

	cfg := domain.DefaultOverlapConfig()
	if _, err := o.RunWithinSource(context.Background(), projectID, sourceID, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.RunWithinSource(context.Background(), projectID, sourceID, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clusters, _ := s.GetClustersByProject(context.Background(), projectID)
	if len(clusters) != 1 {
		t.Fatalf("expected re-run to replace rather than duplicate clusters, got %d", len(clusters))
	}
}

func TestRunWithinSourceKeepsLockedCluster(t *testing.T) {
	// DeleteClustersByScope excludes locked rows for every scope, so a
	// locked within-source cluster survives a within-source re-run.
	s, o := setup(t)
	projectID := domain.NewID()
	sourceID := domain.NewID()

	if err := s.CreateCluster(context.Background(), domain.OverlapCluster{ProjectID: projectID, Scope: domain.ScopeWithinSource, Locked: true}, []domain.OverlapClusterMember{{RecordSourceID: domain.NewID(), SourceID: sourceID}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := o.RunWithinSource(context.Background(), projectID, sourceID, domain.DefaultOverlapConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clusters, _ := s.GetClustersByProject(context.Background(), projectID)
	if len(clusters) != 1 || !clusters[0].Locked {
		t.Fatalf("expected the locked cluster to survive the re-run, got %+v", clusters)
	}
}

func TestRunManualProducesCrossSourceCluster(t *testing.T) {
	s, o := setup(t)
	projectID := domain.NewID()
	sourceA, sourceB := domain.NewID(), domain.NewID()
	recA, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	recB, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})

	rsA := domain.RecordSource{ID: domain.NewID(), SourceID: sourceA, RecordID: recA.ID, RawData: rawRecord("Shared Paper", "10.1/shared", "2021")}
	rsB := domain.RecordSource{ID: domain.NewID(), SourceID: sourceB, RecordID: recB.ID, RawData: rawRecord("Shared Paper", "10.1/shared", "2021")}
	s.SeedRecordSource(rsA)
	s.SeedRecordSource(rsB)

	n, err := o.RunManual(context.Background(), projectID, domain.DefaultOverlapConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cross-source cluster, got %d", n)
	}

	clusters, _ := s.GetClustersByProject(context.Background(), projectID)
	if len(clusters) != 1 || clusters[0].Scope != domain.ScopeCrossSource {
		t.Fatalf("expected a cross-source cluster, got %+v", clusters)
	}
}

func TestRunManualFailsWhenProjectLocked(t *testing.T) {
	s, o := setup(t)
	projectID := domain.NewID()
	if ok, err := o.Lock.TryAcquire(projectID); err != nil || !ok {
		t.Fatalf("expected direct lock acquire to succeed, got %v %v", ok, err)
	}

	_, err := o.RunManual(context.Background(), projectID, domain.DefaultOverlapConfig())
	if err != ErrProjectLocked {
		t.Fatalf("expected ErrProjectLocked, got %v", err)
	}
	_ = s
}

func TestPlanManualLinkNoopWhenAlreadyOneCluster(t *testing.T) {
	rsA, rsB := domain.NewID(), domain.NewID()
	clusterID := domain.NewID()
	plan := PlanManualLink([]domain.ID{rsA, rsB}, map[domain.ID]domain.ID{rsA: clusterID, rsB: clusterID}, map[domain.ID]bool{clusterID: false})
	if plan.Action != ActionNoop {
		t.Fatalf("expected noop, got %s", plan.Action)
	}
}

func TestPlanManualLinkMergesTwoUnlockedClusters(t *testing.T) {
	rsA, rsB := domain.NewID(), domain.NewID()
	c1, c2 := domain.NewID(), domain.NewID()
	plan := PlanManualLink([]domain.ID{rsA, rsB}, map[domain.ID]domain.ID{rsA: c1, rsB: c2}, map[domain.ID]bool{c1: false, c2: false})
	if plan.Action != ActionMerge {
		t.Fatalf("expected merge, got %s", plan.Action)
	}
	expectKeep, expectRemove := c1, c2
	if c2.String() < c1.String() {
		expectKeep, expectRemove = c2, c1
	}
	if plan.KeepClusterID != expectKeep || plan.RemoveCluster != expectRemove {
		t.Fatalf("expected keep=%s remove=%s, got keep=%s remove=%s", expectKeep, expectRemove, plan.KeepClusterID, plan.RemoveCluster)
	}
}

func TestPlanManualLinkCreatesNewWhenLockedClusterInvolved(t *testing.T) {
	rsA, rsB := domain.NewID(), domain.NewID()
	c1, c2 := domain.NewID(), domain.NewID()
	plan := PlanManualLink([]domain.ID{rsA, rsB}, map[domain.ID]domain.ID{rsA: c1, rsB: c2}, map[domain.ID]bool{c1: true, c2: false})
	if plan.Action != ActionCreateNew {
		t.Fatalf("expected create_new when a locked cluster is involved, got %s", plan.Action)
	}
}

func TestPlanManualLinkAddsToExistingWhenOneClusterPlusUnclustered(t *testing.T) {
	rsA, rsB := domain.NewID(), domain.NewID()
	c1 := domain.NewID()
	plan := PlanManualLink([]domain.ID{rsA, rsB}, map[domain.ID]domain.ID{rsA: c1}, map[domain.ID]bool{c1: false})
	if plan.Action != ActionAddToExisting {
		t.Fatalf("expected add_to_existing, got %s", plan.Action)
	}
	if plan.TargetCluster != c1 {
		t.Fatalf("expected target cluster %s, got %s", c1, plan.TargetCluster)
	}
	if len(plan.Unclustered) != 1 || plan.Unclustered[0] != rsB {
		t.Fatalf("expected rsB unclustered, got %v", plan.Unclustered)
	}
}

func TestManualLinkRejectsFewerThanTwoRecords(t *testing.T) {
	_, o := setup(t)
	_, err := o.ManualLink(context.Background(), domain.NewID(), []domain.ID{domain.NewID()}, false, nil)
	if err != ErrInvalidManualLinkInput {
		t.Fatalf("expected ErrInvalidManualLinkInput, got %v", err)
	}
}

func TestManualLinkMergeMovesMembersAndDeletesAbsorbedCluster(t *testing.T) {
	s, o := setup(t)
	projectID := domain.NewID()
	sourceID := domain.NewID()
	rsA, rsB := domain.NewID(), domain.NewID()

	c1 := domain.OverlapCluster{ProjectID: projectID, Scope: domain.ScopeCrossSource, Origin: domain.OriginAuto}
	if err := s.CreateCluster(context.Background(), c1, []domain.OverlapClusterMember{{RecordSourceID: rsA, SourceID: sourceID, Role: domain.RoleCanonical}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c2 := domain.OverlapCluster{ProjectID: projectID, Scope: domain.ScopeCrossSource, Origin: domain.OriginAuto}
	if err := s.CreateCluster(context.Background(), c2, []domain.OverlapClusterMember{{RecordSourceID: rsB, SourceID: sourceID, Role: domain.RoleCanonical}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plan, err := o.ManualLink(context.Background(), projectID, []domain.ID{rsA, rsB}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != ActionMerge {
		t.Fatalf("expected merge, got %s", plan.Action)
	}

	clusters, _ := s.GetClustersByProject(context.Background(), projectID)
	if len(clusters) != 1 {
		t.Fatalf("expected exactly one surviving cluster, got %d", len(clusters))
	}
	if clusters[0].Origin != domain.OriginMixed {
		t.Fatalf("expected surviving cluster origin promoted to mixed, got %s", clusters[0].Origin)
	}

	members, _ := s.GetClusterMembers(context.Background(), clusters[0].ID)
	if len(members) != 2 {
		t.Fatalf("expected both members folded into the surviving cluster, got %d", len(members))
	}
}

func TestComputeOverlapMatrixIsSymmetricWithZeroDiagonal(t *testing.T) {
	s1, s2, s3 := domain.NewID(), domain.NewID(), domain.NewID()
	clusterID := domain.NewID()
	clusters := []domain.OverlapCluster{{ID: clusterID, Scope: domain.ScopeCrossSource}}
	membersByCluster := map[domain.ID][]domain.OverlapClusterMember{
		clusterID: {{SourceID: s1}, {SourceID: s2}},
	}
	matrix := ComputeOverlapMatrix([]domain.ID{s1, s2, s3}, clusters, membersByCluster)

	if matrix[0][1] != 1 || matrix[1][0] != 1 {
		t.Fatalf("expected symmetric count of 1 between s1/s2, got %+v", matrix)
	}
	if matrix[0][0] != 0 || matrix[1][1] != 0 || matrix[2][2] != 0 {
		t.Fatalf("expected zero diagonal, got %+v", matrix)
	}
	if matrix[0][2] != 0 || matrix[1][2] != 0 {
		t.Fatalf("expected no overlap involving s3, got %+v", matrix)
	}
}

func TestComputeTopIntersectionsOrdersByCountDescending(t *testing.T) {
	sA, sB, sC := domain.NewID(), domain.NewID(), domain.NewID()
	cluster1, cluster2, cluster3 := domain.NewID(), domain.NewID(), domain.NewID()
	clusters := []domain.OverlapCluster{
		{ID: cluster1, Scope: domain.ScopeCrossSource},
		{ID: cluster2, Scope: domain.ScopeCrossSource},
		{ID: cluster3, Scope: domain.ScopeCrossSource},
	}
	membersByCluster := map[domain.ID][]domain.OverlapClusterMember{
		cluster1: {{SourceID: sA}, {SourceID: sB}},
		cluster2: {{SourceID: sA}, {SourceID: sB}},
		cluster3: {{SourceID: sA}, {SourceID: sC}},
	}

	top := ComputeTopIntersections(clusters, membersByCluster, 10)
	if len(top) != 2 {
		t.Fatalf("expected 2 distinct combinations, got %d: %+v", len(top), top)
	}
	if top[0].Count != 2 {
		t.Fatalf("expected the (sA,sB) combination with count 2 to rank first, got %+v", top[0])
	}
}
