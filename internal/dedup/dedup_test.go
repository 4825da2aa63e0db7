package dedup

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

func setup(t *testing.T) (*memstore.Store, *Orchestrator, domain.ID) {
	t.Helper()
	clock := fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := memstore.New(clock)
	o := New(s, lock.NewInMemory(), clock, silentLogger())
	projectID := domain.NewID()
	return s, o, projectID
}

func seedStrategy(t *testing.T, s *memstore.Store, projectID domain.ID, preset domain.StrategyPreset) domain.ID {
	t.Helper()
	strat, err := s.SaveStrategy(context.Background(), domain.MatchStrategy{ProjectID: projectID, Preset: preset, Active: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return strat.ID
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestRunDedupMergesSameDOIAcrossTwoSources(t *testing.T) {
	s, o, projectID := setup(t)
	strategyID := seedStrategy(t, s, projectID, domain.PresetDOIFirstStrict)

	rec1, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	rec2, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})

	rs1 := domain.RecordSource{ID: domain.NewID(), RecordID: rec1.ID, MatchDOI: strp("10.1/x"), RawData: map[string]any{"doi": "10.1/x", "title": "Paper One"}}
	rs2 := domain.RecordSource{ID: domain.NewID(), RecordID: rec2.ID, MatchDOI: strp("10.1/x"), RawData: map[string]any{"doi": "10.1/x", "title": "Paper One Duplicate"}}
	s.SeedRecordSource(rs1)
	s.SeedRecordSource(rs2)

	job, _ := s.CreateDedupJob(context.Background(), domain.DedupJob{ProjectID: projectID, StrategyID: strategyID, Status: domain.DedupPending})

	if err := o.RunDedup(context.Background(), job.ID, projectID, strategyID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated1, err := s.GetRecord(context.Background(), rec1.ID)
	if err == nil {
		t.Fatalf("expected original rec1 to be gone, got %+v", updated1)
	}

	final, err := s.GetDedupJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != domain.DedupCompleted {
		t.Fatalf("expected job completed, got %s (%s)", final.Status, final.ErrorMsg)
	}
	// Neither seeded record carries the doi match key, so the run creates
	// a new canonical record and re-points both sources onto it.
	if final.Merges != 2 {
		t.Fatalf("expected exactly 2 merges, got %d", final.Merges)
	}

	logs := s.MatchLogs()
	merged := 0
	for _, l := range logs {
		if l.Action == domain.ActionMerged {
			merged++
		}
	}
	if merged != 2 {
		t.Fatalf("expected 2 merged match log entries, got %d (of %d total)", merged, len(logs))
	}
}

func TestRunDedupIsolatedSingletonLogsUnchanged(t *testing.T) {
	s, o, projectID := setup(t)
	strategyID := seedStrategy(t, s, projectID, domain.PresetStrict)

	rec, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	rs := domain.RecordSource{ID: domain.NewID(), RecordID: rec.ID, NormTitle: strp("a lonely paper"), NormFirstAuthor: strp("smith"), MatchYear: intp(2020)}
	s.SeedRecordSource(rs)

	job, _ := s.CreateDedupJob(context.Background(), domain.DedupJob{ProjectID: projectID, StrategyID: strategyID})
	if err := o.RunDedup(context.Background(), job.ID, projectID, strategyID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logs := s.MatchLogs()
	if len(logs) != 1 || logs[0].Action != domain.ActionUnchanged {
		t.Fatalf("expected a single unchanged log entry, got %+v", logs)
	}

	stillThere, err := s.GetRecord(context.Background(), rec.ID)
	if err != nil || stillThere.ID != rec.ID {
		t.Fatalf("expected isolated singleton's record to survive unchanged, got %+v err=%v", stillThere, err)
	}
}

func TestRunDedupRerunIsIdempotent(t *testing.T) {
	s, o, projectID := setup(t)
	strategyID := seedStrategy(t, s, projectID, domain.PresetDOIFirstStrict)

	rec1, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	rec2, _ := s.CreateRecord(context.Background(), domain.Record{ProjectID: projectID})
	rs1 := domain.RecordSource{ID: domain.NewID(), RecordID: rec1.ID, MatchDOI: strp("10.1/y"), RawData: map[string]any{"doi": "10.1/y", "title": "Paper"}}
	rs2 := domain.RecordSource{ID: domain.NewID(), RecordID: rec2.ID, MatchDOI: strp("10.1/y"), RawData: map[string]any{"doi": "10.1/y", "title": "Paper"}}
	s.SeedRecordSource(rs1)
	s.SeedRecordSource(rs2)

	job1, _ := s.CreateDedupJob(context.Background(), domain.DedupJob{ProjectID: projectID, StrategyID: strategyID})
	if err := o.RunDedup(context.Background(), job1.ID, projectID, strategyID); err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	countAfterFirst, _ := s.CountRecords(context.Background(), projectID)

	job2, _ := s.CreateDedupJob(context.Background(), domain.DedupJob{ProjectID: projectID, StrategyID: strategyID})
	if err := o.RunDedup(context.Background(), job2.ID, projectID, strategyID); err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	countAfterSecond, _ := s.CountRecords(context.Background(), projectID)

	if countAfterFirst != countAfterSecond {
		t.Fatalf("expected record count to stay stable across re-runs, got %d then %d", countAfterFirst, countAfterSecond)
	}

	final, _ := s.GetDedupJob(context.Background(), job2.ID)
	if final.Merges != 0 {
		t.Fatalf("expected the re-run to find nothing new to merge, got %d merges", final.Merges)
	}
}

func TestRunDedupFailsWhenProjectAlreadyLocked(t *testing.T) {
	s, o, projectID := setup(t)
	strategyID := seedStrategy(t, s, projectID, domain.PresetMedium)

	locked, err := o.Lock.TryAcquire(projectID)
	if err != nil || !locked {
		t.Fatalf("expected to acquire the lock directly, got %v %v", locked, err)
	}

	job, _ := s.CreateDedupJob(context.Background(), domain.DedupJob{ProjectID: projectID, StrategyID: strategyID})
	err = o.RunDedup(context.Background(), job.ID, projectID, strategyID)
	if err != ErrProjectLocked {
		t.Fatalf("expected ErrProjectLocked, got %v", err)
	}
}
