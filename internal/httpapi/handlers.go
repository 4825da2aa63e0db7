package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/jobqueue"
	"litreview-dedupe/internal/overlap"
	pkgerrors "litreview-dedupe/pkg/errors"
)

func decodeJSON(body []byte, v interface{}) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
func parseInt(s string) (int, error)       { return strconv.Atoi(s) }

// --- imports ---------------------------------------------------------

type startImportRequest struct {
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
}

// startImport creates an ImportJob row and submits the parse/insert work
// to the background queue, returning 202 with the job id immediately —
// import is never governed by the project lock (spec's concurrency
// guard only names dedup and overlap runs).
func (api *API) startImport(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var req startImportRequest
	if err := decodeJSON(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid source_id"})
		return
	}

	job, err := api.Store.CreateImportJob(r.Context(), domain.ImportJob{
		ProjectID: projectID,
		SourceID:  sourceID,
		Filename:  req.Filename,
		Status:    domain.ImportPending,
	})
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("start_import", err))
		return
	}

	raw := body
	if err := api.Queue.Submit(jobqueue.Job{
		ID:      job.ID.String(),
		Created: api.Clock.Now(),
		Execute: func(ctx context.Context) error {
			return api.Importer.RunImport(ctx, job.ID, projectID, sourceID, raw)
		},
	}); err != nil {
		writeAppError(w, pkgerrors.UnhandledError("start_import", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"import_job_id": job.ID.String(), "status": string(domain.ImportPending)})
}

func (api *API) getImportJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	job, err := api.Store.GetImportJob(r.Context(), id)
	if err != nil {
		writeAppError(w, pkgerrors.NotFoundError(pkgerrors.CodeJobNotFound, "get_import_job", "import job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- dedup -------------------------------------------------------------

type startDedupRequest struct {
	StrategyID string `json:"strategy_id"`
}

// startDedup answers 409 when the project's advisory lock is already
// held: it peeks the lock (acquiring and at once releasing it) before
// creating a job row or submitting any work. The peek does not reserve
// the lock, so a second request that arrives before the first queued
// run takes the lock also gets 202; whichever run then finds the lock
// held marks its own job failed with the project-locked message.
func (api *API) startDedup(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var req startDedupRequest
	if err := decodeJSON(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	strategyID, err := uuid.Parse(req.StrategyID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid strategy_id"})
		return
	}

	free, err := peekLock(api.Dedup.Lock, projectID)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("start_dedup", err))
		return
	}
	if !free {
		writeAppError(w, pkgerrors.ProjectLockedError("start_dedup"))
		return
	}

	job, err := api.Store.CreateDedupJob(r.Context(), domain.DedupJob{
		ProjectID:  projectID,
		StrategyID: strategyID,
		Status:     domain.DedupPending,
	})
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("start_dedup", err))
		return
	}

	if err := api.Queue.Submit(jobqueue.Job{
		ID:      job.ID.String(),
		Created: api.Clock.Now(),
		Execute: func(ctx context.Context) error {
			return api.Dedup.RunDedup(ctx, job.ID, projectID, strategyID)
		},
	}); err != nil {
		writeAppError(w, pkgerrors.UnhandledError("start_dedup", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"dedup_job_id": job.ID.String(), "status": string(domain.DedupPending)})
}

func (api *API) getDedupJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	job, err := api.Store.GetDedupJob(r.Context(), id)
	if err != nil {
		writeAppError(w, pkgerrors.NotFoundError(pkgerrors.CodeJobNotFound, "get_dedup_job", "dedup job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- strategies ----------------------------------------------------------

type createStrategyRequest struct {
	Name   string                `json:"name"`
	Preset domain.StrategyPreset `json:"preset"`
	Config *domain.DedupConfig   `json:"config,omitempty"`
	Active bool                  `json:"active"`
}

func (api *API) createStrategy(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var req createStrategyRequest
	if err := decodeJSON(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Preset == domain.PresetCustom && req.Config == nil {
		writeAppError(w, pkgerrors.InvalidManualLinkInputError("create_strategy", "custom preset requires a config"))
		return
	}

	saved, err := api.Store.SaveStrategy(r.Context(), domain.MatchStrategy{
		ProjectID: projectID,
		Name:      req.Name,
		Preset:    req.Preset,
		Config:    req.Config,
		Active:    req.Active,
		CreatedAt: api.Clock.Now(),
	})
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("create_strategy", err))
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (api *API) getStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	strategy, err := api.Store.GetStrategy(r.Context(), id)
	if err != nil {
		writeAppError(w, pkgerrors.NotFoundError(pkgerrors.CodeStrategyNotFound, "get_strategy", "strategy not found"))
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

// previewStrategy resolves the strategy's DedupConfig and reports it
// back, letting a client see exactly what tiers a preset expands to
// before committing to a real dedup run.
func (api *API) previewStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	strategy, err := api.Store.GetStrategy(r.Context(), id)
	if err != nil {
		writeAppError(w, pkgerrors.NotFoundError(pkgerrors.CodeStrategyNotFound, "preview_strategy", "strategy not found"))
		return
	}
	writeJSON(w, http.StatusOK, domain.ResolveDedupConfig(strategy))
}

// --- overlap ---------------------------------------------------------

// runOverlap honors the same synchronous lock-peek contract as startDedup.
func (api *API) runOverlap(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	cfg, err := decodeOverlapConfig(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	free, err := peekLock(api.Overlap.Lock, projectID)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("run_overlap", err))
		return
	}
	if !free {
		writeAppError(w, pkgerrors.ProjectLockedError("run_overlap"))
		return
	}

	if err := api.Queue.Submit(jobqueue.Job{
		ID:      fmt.Sprintf("overlap-%s-%d", projectID, api.Clock.Now().UnixNano()),
		Created: api.Clock.Now(),
		Execute: func(ctx context.Context) error {
			_, err := api.Overlap.RunManual(ctx, projectID, cfg)
			return err
		},
	}); err != nil {
		writeAppError(w, pkgerrors.UnhandledError("run_overlap", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "running"})
}

func (api *API) previewOverlap(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	cfg, err := decodeOverlapConfig(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	preview, err := api.Overlap.PreviewOverlap(r.Context(), projectID, cfg)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("preview_overlap", err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (api *API) listClusters(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	clusters, err := api.Store.GetClustersByProject(r.Context(), projectID)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("list_clusters", err))
		return
	}
	writeJSON(w, http.StatusOK, clusters)
}

type visualSummaryResponse struct {
	Matrix         [][]int                    `json:"matrix"`
	SourceIDs      []domain.ID                `json:"source_ids"`
	TopIntersects  []overlap.SourceCombination `json:"top_intersections"`
	InternalCounts map[string]int             `json:"internal_overlaps_by_source"`
}

func (api *API) visualSummary(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		return
	}
	clusters, err := api.Store.GetClustersByProject(r.Context(), projectID)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("visual_summary", err))
		return
	}
	recordSources, err := api.Store.GetRecordSourcesByProject(r.Context(), projectID)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("visual_summary", err))
		return
	}

	sourceSet := make(map[domain.ID]bool)
	for _, rs := range recordSources {
		sourceSet[rs.SourceID] = true
	}
	sourceIDs := make([]domain.ID, 0, len(sourceSet))
	for id := range sourceSet {
		sourceIDs = append(sourceIDs, id)
	}

	membersByCluster := make(map[domain.ID][]domain.OverlapClusterMember, len(clusters))
	for _, c := range clusters {
		members, err := api.Store.GetClusterMembers(r.Context(), c.ID)
		if err != nil {
			writeAppError(w, pkgerrors.InternalDbError("visual_summary", err))
			return
		}
		membersByCluster[c.ID] = members
	}

	internalCounts := make(map[string]int, len(sourceIDs))
	for _, id := range sourceIDs {
		internalCounts[id.String()] = overlap.InternalOverlapCount(id, clusters, membersByCluster)
	}

	writeJSON(w, http.StatusOK, visualSummaryResponse{
		Matrix:         overlap.ComputeOverlapMatrix(sourceIDs, clusters, membersByCluster),
		SourceIDs:      sourceIDs,
		TopIntersects:  overlap.ComputeTopIntersections(clusters, membersByCluster, 10),
		InternalCounts: internalCounts,
	})
}

type manualLinkRequest struct {
	ProjectID       string   `json:"project_id"`
	RecordSourceIDs []string `json:"record_source_ids"`
	Locked          bool     `json:"locked"`
	Note            *string  `json:"note,omitempty"`
}

func (api *API) manualLink(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var req manualLinkRequest
	if err := decodeJSON(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid project_id"})
		return
	}
	ids := make([]domain.ID, 0, len(req.RecordSourceIDs))
	for _, s := range req.RecordSourceIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record_source_ids entry"})
			return
		}
		ids = append(ids, id)
	}

	plan, err := api.Overlap.ManualLink(r.Context(), projectID, ids, req.Locked, req.Note)
	if err != nil {
		if err == overlap.ErrInvalidManualLinkInput {
			writeAppError(w, pkgerrors.InvalidManualLinkInputError("manual_link", err.Error()))
			return
		}
		writeAppError(w, pkgerrors.InternalDbError("manual_link", err))
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type lockClusterRequest struct {
	Locked bool `json:"locked"`
}

func (api *API) lockCluster(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var req lockClusterRequest
	if err := decodeJSON(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := api.Overlap.SetLocked(r.Context(), id, req.Locked); err != nil {
		writeAppError(w, pkgerrors.InternalDbError("lock_cluster", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": req.Locked})
}

// removeMember drops one member row from a cluster. A cluster left with
// a single member after removal is pointless (nothing for it to group)
// so it is deleted along with its last member.
func (api *API) removeMember(w http.ResponseWriter, r *http.Request) {
	clusterID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cluster id"})
		return
	}
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid member id"})
		return
	}

	members, err := api.Store.GetClusterMembers(r.Context(), clusterID)
	if err != nil {
		writeAppError(w, pkgerrors.InternalDbError("remove_member", err))
		return
	}
	remaining := make([]domain.OverlapClusterMember, 0, len(members))
	found := false
	for _, m := range members {
		if m.ID == memberID {
			found = true
			continue
		}
		remaining = append(remaining, m)
	}
	if !found {
		writeAppError(w, pkgerrors.NotFoundError(pkgerrors.CodeClusterNotFound, "remove_member", "member not found in cluster"))
		return
	}

	if len(remaining) <= 1 {
		if err := api.Store.DeleteCluster(r.Context(), clusterID); err != nil {
			writeAppError(w, pkgerrors.InternalDbError("remove_member", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cluster dissolved"})
		return
	}

	cluster, err := api.Store.GetCluster(r.Context(), clusterID)
	if err != nil {
		writeAppError(w, pkgerrors.NotFoundError(pkgerrors.CodeClusterNotFound, "remove_member", "cluster not found"))
		return
	}
	cluster.Origin = domain.OriginMixed
	if err := api.Store.CreateCluster(r.Context(), cluster, remaining); err != nil {
		writeAppError(w, pkgerrors.InternalDbError("remove_member", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "member removed"})
}

func decodeOverlapConfig(r *http.Request) (domain.OverlapConfig, error) {
	q := r.URL.Query()
	if len(q) == 0 {
		return domain.DefaultOverlapConfig(), nil
	}
	cfg := domain.DefaultOverlapConfig()
	if fields, ok := q["field"]; ok && len(fields) > 0 {
		cfg.SelectedFields = fields
	}
	if q.Get("fuzzy") == "true" {
		cfg.FuzzyEnabled = true
	}
	if v := q.Get("fuzzy_threshold"); v != "" {
		if parsed, err := parseFloat(v); err == nil {
			cfg.FuzzyThreshold = parsed
		}
	}
	if v := q.Get("year_tolerance"); v != "" {
		if parsed, err := parseInt(v); err == nil {
			cfg.YearTolerance = parsed
		}
	}
	return cfg, nil
}
