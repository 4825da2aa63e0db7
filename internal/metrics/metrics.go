// Package metrics exposes Prometheus collectors for the import/dedup/
// overlap pipeline and a small HTTP server to serve them. Every collector
// is created with promauto, which registers it when the package is
// initialized.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// ImportJobsTotal counts completed import jobs by terminal status.
	ImportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_import_jobs_total",
			Help: "Total number of import jobs by terminal status",
		},
		[]string{"status"},
	)

	// RecordsParsedTotal counts parsed records by format and outcome.
	RecordsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_records_parsed_total",
			Help: "Total number of records parsed from uploaded files",
		},
		[]string{"format", "outcome"}, // outcome: valid, failed, dropped
	)

	// DedupJobsTotal counts completed dedup jobs by terminal status.
	DedupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_dedup_jobs_total",
			Help: "Total number of dedup jobs by terminal status",
		},
		[]string{"status"},
	)

	// DedupJobDuration observes wall-clock dedup job duration.
	DedupJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dedupe_dedup_job_duration_seconds",
		Help:    "Time spent running a dedup job end to end",
		Buckets: prometheus.DefBuckets,
	})

	// MergesTotal counts records merged into an existing canonical record.
	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedupe_merges_total",
		Help: "Total number of record_sources re-pointed to a canonical record by a dedup run",
	})

	// ClustersCreatedTotal counts overlap clusters created, by scope.
	ClustersCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_overlap_clusters_created_total",
			Help: "Total number of overlap clusters created",
		},
		[]string{"scope"}, // within_source, cross_source
	)

	// ClustersDeletedTotal counts overlap clusters deleted ahead of a
	// fresh detection pass.
	ClustersDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_overlap_clusters_deleted_total",
			Help: "Total number of overlap clusters deleted before a detection re-run",
		},
		[]string{"scope"},
	)

	// ManualLinkActionsTotal counts ManualLink outcomes by the action
	// PlanManualLink chose.
	ManualLinkActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_manual_link_actions_total",
			Help: "Total number of manual-link requests by resulting action",
		},
		[]string{"action"}, // noop, merge, create_new, add_to_existing
	)

	// ProjectLockContentionTotal counts failed TryAcquire calls.
	ProjectLockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedupe_project_lock_contention_total",
		Help: "Total number of TryAcquire calls that found the project already locked",
	})

	// StaleJobsReapedTotal counts jobs the reaper force-failed.
	StaleJobsReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_stale_jobs_reaped_total",
			Help: "Total number of jobs marked failed by the staleness reaper",
		},
		[]string{"job_type"}, // import, dedup
	)

	// JobQueueDepth tracks the current number of queued (not yet
	// dispatched to a worker) jobs.
	JobQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dedupe_job_queue_depth",
		Help: "Current number of jobs waiting in the bounded job queue",
	})

	// JobQueueActiveWorkers tracks the number of workers currently
	// executing a job.
	JobQueueActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dedupe_job_queue_active_workers",
		Help: "Current number of job queue workers executing a job",
	})

	// HTTPRequestsTotal counts handled façade requests by route and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedupe_http_requests_total",
			Help: "Total number of HTTP requests served by the operational façade",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestDuration observes façade request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedupe_http_request_duration_seconds",
			Help:    "Latency of HTTP requests served by the operational façade",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

var registerOnce sync.Once

// MetricsServer serves the Prometheus exposition endpoint and a basic
// liveness check on its own listener, separate from the operational
// HTTP façade.
type MetricsServer struct {
	server *http.Server
	logger *logrus.Logger
}

// NewMetricsServer builds a server bound to addr. It registers nothing
// itself: the collectors were registered by promauto at package
// initialization, so constructing several servers in one process (e.g.
// from repeated tests) is safe.
func NewMetricsServer(addr string, logger *logrus.Logger) *MetricsServer {
	registerOnce.Do(func() {
		// promauto already registers on creation; this call exists so a
		// caller constructing a second MetricsServer in the same process
		// (as tests do) never panics on duplicate registration.
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start runs the metrics server in the background.
func (ms *MetricsServer) Start() error {
	ms.logger.WithField("addr", ms.server.Addr).Info("starting metrics server")
	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Stop shuts the metrics server down.
func (ms *MetricsServer) Stop() error {
	ms.logger.Info("stopping metrics server")
	return ms.server.Close()
}

// RecordImportJob records a terminal import job outcome.
func RecordImportJob(status string) {
	ImportJobsTotal.WithLabelValues(status).Inc()
}

// RecordRecordsParsed records parsed-record outcomes for one file.
func RecordRecordsParsed(format, outcome string, n int) {
	RecordsParsedTotal.WithLabelValues(format, outcome).Add(float64(n))
}

// RecordDedupJob records a terminal dedup job outcome and its duration.
func RecordDedupJob(status string, duration time.Duration) {
	DedupJobsTotal.WithLabelValues(status).Inc()
	DedupJobDuration.Observe(duration.Seconds())
}

// RecordMerges adds n to the running merge count.
func RecordMerges(n int) {
	if n > 0 {
		MergesTotal.Add(float64(n))
	}
}

// RecordClustersCreated adds n to the created-cluster count for scope.
func RecordClustersCreated(scope string, n int) {
	if n > 0 {
		ClustersCreatedTotal.WithLabelValues(scope).Add(float64(n))
	}
}

// RecordClustersDeleted adds n to the deleted-cluster count for scope.
func RecordClustersDeleted(scope string, n int) {
	if n > 0 {
		ClustersDeletedTotal.WithLabelValues(scope).Add(float64(n))
	}
}

// RecordManualLinkAction records which action PlanManualLink chose.
func RecordManualLinkAction(action string) {
	ManualLinkActionsTotal.WithLabelValues(action).Inc()
}

// RecordLockContention increments the lock-contention counter.
func RecordLockContention() {
	ProjectLockContentionTotal.Inc()
}

// RecordStaleJobReaped records one job force-failed by the reaper.
func RecordStaleJobReaped(jobType string) {
	StaleJobsReapedTotal.WithLabelValues(jobType).Inc()
}

// RecordHTTPRequest records one handled façade request.
func RecordHTTPRequest(route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
