// Package httpapi binds the operational surface of the dedup/overlap
// core onto github.com/gorilla/mux: start-import, get-job, start-dedup,
// strategy CRUD + preview, and every overlap endpoint. It is a thin
// demonstration harness, not a business-rule layer — no auth, no
// request-level policy, mirroring the teacher's own handlers.go split
// between "app wiring" and "HTTP decoding".
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/dedup"
	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/importer"
	"litreview-dedupe/internal/jobqueue"
	"litreview-dedupe/internal/lock"
	"litreview-dedupe/internal/metrics"
	"litreview-dedupe/internal/overlap"
	"litreview-dedupe/internal/store"
	pkgerrors "litreview-dedupe/pkg/errors"
)

// API holds every dependency a handler needs. Built once by internal/app
// and wired into a *mux.Router by NewRouter.
type API struct {
	Store    store.Store
	Dedup    *dedup.Orchestrator
	Overlap  *overlap.Orchestrator
	Importer *importer.Orchestrator
	Queue    *jobqueue.Queue
	Clock    domain.Clock
	Logger   *logrus.Logger
}

// NewRouter registers every route of the operational surface and wraps
// each with a metrics + logging middleware, following the same
// middleware-wrapped-router shape as the teacher's registerHandlers.
func NewRouter(api *API) *mux.Router {
	router := mux.NewRouter()
	mw := api.loggingMiddleware

	router.Handle("/projects/{projectID}/imports", mw(http.HandlerFunc(api.startImport))).Methods(http.MethodPost)
	router.Handle("/imports/{id}", mw(http.HandlerFunc(api.getImportJob))).Methods(http.MethodGet)

	router.Handle("/projects/{projectID}/dedup", mw(http.HandlerFunc(api.startDedup))).Methods(http.MethodPost)
	router.Handle("/dedup/{id}", mw(http.HandlerFunc(api.getDedupJob))).Methods(http.MethodGet)

	router.Handle("/projects/{projectID}/strategies", mw(http.HandlerFunc(api.createStrategy))).Methods(http.MethodPost)
	router.Handle("/strategies/{id}", mw(http.HandlerFunc(api.getStrategy))).Methods(http.MethodGet)
	router.Handle("/strategies/{id}/preview", mw(http.HandlerFunc(api.previewStrategy))).Methods(http.MethodPost)

	router.Handle("/projects/{projectID}/overlap/run", mw(http.HandlerFunc(api.runOverlap))).Methods(http.MethodPost)
	router.Handle("/projects/{projectID}/overlap/preview", mw(http.HandlerFunc(api.previewOverlap))).Methods(http.MethodGet)
	router.Handle("/projects/{projectID}/overlap/clusters", mw(http.HandlerFunc(api.listClusters))).Methods(http.MethodGet)
	router.Handle("/projects/{projectID}/overlap/visual-summary", mw(http.HandlerFunc(api.visualSummary))).Methods(http.MethodGet)

	router.Handle("/overlap/manual-link", mw(http.HandlerFunc(api.manualLink))).Methods(http.MethodPost)
	router.Handle("/clusters/{id}/lock", mw(http.HandlerFunc(api.lockCluster))).Methods(http.MethodPost)
	router.Handle("/clusters/{id}/members/{memberID}", mw(http.HandlerFunc(api.removeMember))).Methods(http.MethodDelete)

	return router
}

func (api *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := routeTemplate(r)
		metrics.RecordHTTPRequest(route, http.StatusText(rec.status), time.Since(start))
		api.Logger.WithFields(logrus.Fields{
			"method": r.Method,
			"route":  route,
			"status": rec.status,
			"took":   time.Since(start),
		}).Debug("handled request")
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAppError maps an *pkgerrors.AppError onto its documented HTTP
// status; any other error is treated as an unhandled 500.
func writeAppError(w http.ResponseWriter, err error) {
	if appErr, ok := pkgerrors.AsAppError(err); ok {
		writeJSON(w, pkgerrors.HTTPStatus(appErr.Code), map[string]string{"error": appErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// peekLock reports whether projectID is currently free by acquiring
// and immediately releasing the advisory lock. This gives the HTTP
// layer the synchronous 409 the operational contract requires, while
// the actual job execution (queued asynchronously) re-acquires the
// lock itself around the critical section — accepting a small race
// window between the peek and the queued run, same as any "check then
// enqueue" admission check ahead of a worker pool.
func peekLock(lk lock.ProjectLock, projectID domain.ID) (bool, error) {
	acquired, err := lk.TryAcquire(projectID)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	return true, lk.Release(projectID)
}

func pathID(r *http.Request, name string) (domain.ID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
