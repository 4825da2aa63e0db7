// Package memstore is an in-memory reference implementation of
// internal/store.Store. It exists for tests and for the single-process
// demo server; every write takes the same mutex so concurrent dedup and
// overlap jobs never race on the underlying maps.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"litreview-dedupe/internal/domain"
)

// MaxBatchParams bounds how many (record_source_id, record_id) pairs a
// single UpdateRecordSourceLinks batch touches at once, mirroring the
// parameter-count ceiling a real SQL driver would hit on one UPDATE ...
// FROM (VALUES ...) statement. Kept small enough that tests can assert
// chunking behavior without constructing thousands of rows.
const MaxBatchParams = 50

// Store is the in-memory Store implementation.
type Store struct {
	mu sync.Mutex

	recordSources map[uuid.UUID]domain.RecordSource
	records       map[uuid.UUID]domain.Record
	importJobs    map[uuid.UUID]domain.ImportJob
	dedupJobs     map[uuid.UUID]domain.DedupJob
	matchLogs     []domain.MatchLog
	strategies    map[uuid.UUID]domain.MatchStrategy
	clusters      map[uuid.UUID]domain.OverlapCluster
	members       map[uuid.UUID][]domain.OverlapClusterMember // clusterID -> members

	clock domain.Clock
}

// New builds an empty in-memory store. clock is used to stamp CreatedAt
// fields; pass domain.RealClock{} in production and a fixed fake in
// tests that assert on ordering.
func New(clock domain.Clock) *Store {
	return &Store{
		recordSources: make(map[uuid.UUID]domain.RecordSource),
		records:       make(map[uuid.UUID]domain.Record),
		importJobs:    make(map[uuid.UUID]domain.ImportJob),
		dedupJobs:     make(map[uuid.UUID]domain.DedupJob),
		strategies:    make(map[uuid.UUID]domain.MatchStrategy),
		clusters:      make(map[uuid.UUID]domain.OverlapCluster),
		members:       make(map[uuid.UUID][]domain.OverlapClusterMember),
		clock:         clock,
	}
}

// SeedRecordSource inserts a record_source directly, bypassing any
// import pipeline. Test and fixture helper only.
func (s *Store) SeedRecordSource(rs domain.RecordSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordSources[rs.ID] = rs
}

// SeedRecord inserts a record directly. Test and fixture helper only.
func (s *Store) SeedRecord(r domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

func (s *Store) GetRecordSourcesBySource(_ context.Context, sourceID uuid.UUID) ([]domain.RecordSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RecordSource
	for _, rs := range s.recordSources {
		if rs.SourceID == sourceID {
			out = append(out, rs)
		}
	}
	sortRecordSources(out)
	return out, nil
}

func (s *Store) GetRecordSourcesByProject(_ context.Context, projectID uuid.UUID) ([]domain.RecordSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RecordSource
	for _, rs := range s.recordSources {
		if rec, ok := s.records[rs.RecordID]; ok && rec.ProjectID == projectID {
			out = append(out, rs)
			continue
		}
		if _, ok := s.records[rs.RecordID]; !ok {
			// Orphaned pointer (shouldn't normally happen); include it
			// so callers can observe and repair inconsistent fixtures.
			out = append(out, rs)
		}
	}
	sortRecordSources(out)
	return out, nil
}

// CreateRecordSource conflict-ignores on (record_id, source_id): if a
// record_source already asserts this record from this source, the
// existing row is returned untouched instead of inserting a duplicate,
// matching the partial-unique-index semantics spec §3/§4.10 require.
func (s *Store) CreateRecordSource(_ context.Context, rs domain.RecordSource) (domain.RecordSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.recordSources {
		if existing.RecordID == rs.RecordID && existing.SourceID == rs.SourceID {
			return existing, nil
		}
	}
	if domain.ZeroID(rs.ID) {
		rs.ID = domain.NewID()
	}
	rs.CreatedAt = s.clock.Now()
	s.recordSources[rs.ID] = rs
	return rs, nil
}

func sortRecordSources(rs []domain.RecordSource) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID.String() < rs[j].ID.String() })
}

func (s *Store) GetRecord(_ context.Context, id uuid.UUID) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("record %s not found", id)
	}
	return rec, nil
}

// CreateRecord conflict-ignores on (project_id, match_key): a record
// with a non-null match_key already shared by another record in the
// same project is returned as-is rather than duplicated, per the
// batched-upsert semantics of spec §4.10. A nil match_key (no basis
// strong enough to key on, or a custom strategy matchkey.Compute
// can't resolve) always inserts a fresh row — those records stay
// isolated until a dedup run's tiered cluster engine collapses them.
func (s *Store) CreateRecord(_ context.Context, rec domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.MatchKey != nil {
		for _, existing := range s.records {
			if existing.ProjectID == rec.ProjectID && existing.MatchKey != nil && *existing.MatchKey == *rec.MatchKey {
				return existing, nil
			}
		}
	}
	if domain.ZeroID(rec.ID) {
		rec.ID = domain.NewID()
	}
	rec.CreatedAt = s.clock.Now()
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *Store) FindRecordByMatchKey(_ context.Context, projectID uuid.UUID, matchKey string) (domain.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ProjectID == projectID && rec.MatchKey != nil && *rec.MatchKey == matchKey {
			return rec, true, nil
		}
	}
	return domain.Record{}, false, nil
}

func (s *Store) CountRecords(_ context.Context, projectID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

// UpdateRecordSourceLinks applies updates in fixed-size chunks, each
// chunk taking the store lock independently — the same shape a real
// driver batching UPDATE statements within MaxBatchParams would take,
// so a caller cannot observe the whole map locked for the full update.
func (s *Store) UpdateRecordSourceLinks(_ context.Context, updates map[uuid.UUID]uuid.UUID) error {
	ids := make([]uuid.UUID, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for start := 0; start < len(ids); start += MaxBatchParams {
		end := start + MaxBatchParams
		if end > len(ids) {
			end = len(ids)
		}
		s.mu.Lock()
		for _, id := range ids[start:end] {
			rs, ok := s.recordSources[id]
			if !ok {
				s.mu.Unlock()
				return fmt.Errorf("record_source %s not found", id)
			}
			rs.RecordID = updates[id]
			s.recordSources[id] = rs
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) DeleteOrphanRecords(_ context.Context, projectID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referenced := make(map[uuid.UUID]bool)
	for _, rs := range s.recordSources {
		referenced[rs.RecordID] = true
	}

	deleted := 0
	for id, rec := range s.records {
		if rec.ProjectID != projectID {
			continue
		}
		if !referenced[id] {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) CreateImportJob(_ context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain.ZeroID(job.ID) {
		job.ID = domain.NewID()
	}
	job.CreatedAt = s.clock.Now()
	s.importJobs[job.ID] = job
	return job, nil
}

func (s *Store) UpdateImportJob(_ context.Context, job domain.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.importJobs[job.ID]; !ok {
		return fmt.Errorf("import job %s not found", job.ID)
	}
	s.importJobs[job.ID] = job
	return nil
}

func (s *Store) GetImportJob(_ context.Context, id uuid.UUID) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.importJobs[id]
	if !ok {
		return domain.ImportJob{}, fmt.Errorf("import job %s not found", id)
	}
	return job, nil
}

func (s *Store) CreateDedupJob(_ context.Context, job domain.DedupJob) (domain.DedupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain.ZeroID(job.ID) {
		job.ID = domain.NewID()
	}
	job.CreatedAt = s.clock.Now()
	s.dedupJobs[job.ID] = job
	return job, nil
}

func (s *Store) UpdateDedupJob(_ context.Context, job domain.DedupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedupJobs[job.ID]; !ok {
		return fmt.Errorf("dedup job %s not found", job.ID)
	}
	s.dedupJobs[job.ID] = job
	return nil
}

func (s *Store) GetDedupJob(_ context.Context, id uuid.UUID) (domain.DedupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.dedupJobs[id]
	if !ok {
		return domain.DedupJob{}, fmt.Errorf("dedup job %s not found", id)
	}
	return job, nil
}

func (s *Store) StaleJobs(_ context.Context, cutoff int64) ([]domain.DedupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DedupJob
	for _, job := range s.dedupJobs {
		if job.Status != domain.DedupRunning && job.Status != domain.DedupPending {
			continue
		}
		if job.CreatedAt.Unix() < cutoff {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *Store) AppendMatchLogs(_ context.Context, entries []domain.MatchLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if domain.ZeroID(e.ID) {
			e.ID = domain.NewID()
		}
		e.CreatedAt = s.clock.Now()
		s.matchLogs = append(s.matchLogs, e)
	}
	return nil
}

// MatchLogs returns every appended match-log row, for assertions in
// tests. Not part of the Store interface.
func (s *Store) MatchLogs() []domain.MatchLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MatchLog, len(s.matchLogs))
	copy(out, s.matchLogs)
	return out
}

func (s *Store) GetActiveStrategy(_ context.Context, projectID uuid.UUID) (domain.MatchStrategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, strat := range s.strategies {
		if strat.ProjectID == projectID && strat.Active {
			return strat, nil
		}
	}
	return domain.MatchStrategy{}, fmt.Errorf("no active strategy for project %s", projectID)
}

func (s *Store) GetStrategy(_ context.Context, id uuid.UUID) (domain.MatchStrategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	strat, ok := s.strategies[id]
	if !ok {
		return domain.MatchStrategy{}, fmt.Errorf("strategy %s not found", id)
	}
	return strat, nil
}

func (s *Store) SaveStrategy(_ context.Context, strat domain.MatchStrategy) (domain.MatchStrategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain.ZeroID(strat.ID) {
		strat.ID = domain.NewID()
	}
	if strat.CreatedAt.IsZero() {
		strat.CreatedAt = s.clock.Now()
	}
	if strat.Active {
		for id, other := range s.strategies {
			if other.ProjectID == strat.ProjectID && id != strat.ID {
				other.Active = false
				s.strategies[id] = other
			}
		}
	}
	s.strategies[strat.ID] = strat
	return strat, nil
}

func (s *Store) CreateCluster(_ context.Context, cluster domain.OverlapCluster, members []domain.OverlapClusterMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain.ZeroID(cluster.ID) {
		cluster.ID = domain.NewID()
	}
	cluster.CreatedAt = s.clock.Now()
	s.clusters[cluster.ID] = cluster

	stamped := make([]domain.OverlapClusterMember, len(members))
	for i, m := range members {
		if domain.ZeroID(m.ID) {
			m.ID = domain.NewID()
		}
		m.ClusterID = cluster.ID
		m.CreatedAt = s.clock.Now()
		stamped[i] = m
	}
	s.members[cluster.ID] = stamped
	return nil
}

func (s *Store) GetCluster(_ context.Context, id uuid.UUID) (domain.OverlapCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return domain.OverlapCluster{}, fmt.Errorf("cluster %s not found", id)
	}
	return c, nil
}

func (s *Store) GetClustersByProject(_ context.Context, projectID uuid.UUID) ([]domain.OverlapCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OverlapCluster
	for _, c := range s.clusters {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) GetClusterMembers(_ context.Context, clusterID uuid.UUID) ([]domain.OverlapClusterMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OverlapClusterMember, len(s.members[clusterID]))
	copy(out, s.members[clusterID])
	return out, nil
}

func (s *Store) GetMembersForRecordSources(_ context.Context, recordSourceIDs []uuid.UUID) ([]domain.OverlapClusterMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(recordSourceIDs))
	for _, id := range recordSourceIDs {
		want[id] = true
	}
	var out []domain.OverlapClusterMember
	for _, members := range s.members {
		for _, m := range members {
			if want[m.RecordSourceID] {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// DeleteClustersByScope deletes non-locked clusters matching scope.
// When sourceID is non-nil, only clusters whose every member belongs to
// that source are deleted — the scope gate that keeps the auto
// within-source sweep from reaching into cross-source clusters that
// merely happen to include one of that source's members.
func (s *Store) DeleteClustersByScope(_ context.Context, projectID uuid.UUID, scope domain.ClusterScope, sourceID *uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, c := range s.clusters {
		if c.ProjectID != projectID || c.Scope != scope || c.Locked {
			continue
		}
		if sourceID != nil && !allMembersFromSource(s.members[id], *sourceID) {
			continue
		}
		delete(s.clusters, id)
		delete(s.members, id)
		deleted++
	}
	return deleted, nil
}

func allMembersFromSource(members []domain.OverlapClusterMember, sourceID uuid.UUID) bool {
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if m.SourceID != sourceID {
			return false
		}
	}
	return true
}

func (s *Store) SetClusterLocked(_ context.Context, clusterID uuid.UUID, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[clusterID]
	if !ok {
		return fmt.Errorf("cluster %s not found", clusterID)
	}
	c.Locked = locked
	s.clusters[clusterID] = c
	return nil
}

func (s *Store) DeleteCluster(_ context.Context, clusterID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clusters, clusterID)
	delete(s.members, clusterID)
	return nil
}

// snapshot is the serializable form of the whole in-memory store, used
// by Export/Import for demo-mode persistence across process restarts.
type snapshot struct {
	RecordSources map[uuid.UUID]domain.RecordSource            `json:"record_sources"`
	Records       map[uuid.UUID]domain.Record                  `json:"records"`
	ImportJobs    map[uuid.UUID]domain.ImportJob               `json:"import_jobs"`
	DedupJobs     map[uuid.UUID]domain.DedupJob                `json:"dedup_jobs"`
	MatchLogs     []domain.MatchLog                            `json:"match_logs"`
	Strategies    map[uuid.UUID]domain.MatchStrategy           `json:"strategies"`
	Clusters      map[uuid.UUID]domain.OverlapCluster          `json:"clusters"`
	Members       map[uuid.UUID][]domain.OverlapClusterMember  `json:"members"`
}

// Export serializes the entire store to gzip-compressed JSON, the way
// a long-running demo deployment would snapshot state before a
// restart. Uses klauspost/compress's gzip (a drop-in, faster
// implementation of the stdlib package) rather than compress/gzip.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	snap := snapshot{
		RecordSources: s.recordSources,
		Records:       s.records,
		ImportJobs:    s.importJobs,
		DedupJobs:     s.dedupJobs,
		MatchLogs:     s.matchLogs,
		Strategies:    s.strategies,
		Clusters:      s.clusters,
		Members:       s.members,
	}
	s.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("flush snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Import replaces the store's contents with a snapshot previously
// produced by Export. Existing data is discarded.
func (s *Store) Import(data []byte) error {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordSources = snap.RecordSources
	s.records = snap.Records
	s.importJobs = snap.ImportJobs
	s.dedupJobs = snap.DedupJobs
	s.matchLogs = snap.MatchLogs
	s.strategies = snap.Strategies
	s.clusters = snap.Clusters
	s.members = snap.Members
	return nil
}
