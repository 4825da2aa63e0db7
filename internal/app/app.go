// Package app wires every subsystem of the dedup/overlap service into
// one process: configuration, the persistence gateway, the per-project
// advisory lock, the background job queue and its stale-job reaper, the
// three domain orchestrators (import, dedup, overlap), and the HTTP
// façade and metrics server that expose them.
//
// The App struct is the single entry point cmd/main.go drives:
//
//	application, err := app.New("/path/to/config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//		log.Fatal(err)
//	}
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"litreview-dedupe/internal/config"
	"litreview-dedupe/internal/dedup"
	"litreview-dedupe/internal/domain"
	"litreview-dedupe/internal/httpapi"
	"litreview-dedupe/internal/importer"
	"litreview-dedupe/internal/jobqueue"
	"litreview-dedupe/internal/lock"
	"litreview-dedupe/internal/metrics"
	"litreview-dedupe/internal/overlap"
	"litreview-dedupe/internal/store"
	"litreview-dedupe/internal/store/memstore"
)

// App coordinates the lifecycle of every component: construction order
// in New mirrors the dependency chain (store before lock before
// orchestrators before the HTTP façade that calls them), and Stop tears
// them down in reverse.
type App struct {
	config *config.Config
	logger *logrus.Logger

	store store.Store
	lk    lock.ProjectLock

	importerOrch *importer.Orchestrator
	dedupOrch    *dedup.Orchestrator
	overlapOrch  *overlap.Orchestrator

	queue  *jobqueue.Queue
	reaper *jobqueue.Reaper

	httpServer    *http.Server
	metricsServer *metrics.MetricsServer

	ctx        context.Context
	cancel     context.CancelFunc
	configFile string
	wg         sync.WaitGroup
}

// New loads and validates configuration, then initializes every
// component. The returned App is ready for Start or Run but nothing is
// listening yet.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	application := &App{
		config:     cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		configFile: configFile,
	}

	if err := application.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return application, nil
}

// initializeComponents builds the persistence gateway, the advisory
// lock, the three orchestrators, the worker pool and its reaper, and
// the HTTP/metrics servers, in that dependency order.
func (app *App) initializeComponents() error {
	clock := domain.RealClock{}

	if err := app.initStore(); err != nil {
		return err
	}
	app.initLock()

	app.importerOrch = importer.New(app.store, nil, clock, app.logger)
	app.dedupOrch = dedup.New(app.store, app.lk, clock, app.logger)
	app.overlapOrch = overlap.New(app.store, app.lk, clock, app.logger)
	// The importer's automatic within-source pass shares the same
	// overlap orchestrator used for manual runs.
	app.importerOrch.Overlap = app.overlapOrch

	app.queue = jobqueue.New(jobqueue.Config{
		MaxWorkers:      app.config.JobQueue.MaxWorkers,
		QueueSize:       app.config.JobQueue.QueueSize,
		JobTimeout:      app.config.JobQueue.JobTimeout,
		ShutdownTimeout: app.config.JobQueue.ShutdownTimeout,
	}, app.logger)

	app.reaper = jobqueue.NewReaper(app.store, app.lk, app.logger,
		app.config.Reaper.Staleness, app.config.Reaper.Interval, clock)

	app.initHTTPServer(clock)
	app.initMetricsServer()
	return nil
}

// initStore selects the persistence gateway. Only the in-memory
// reference implementation is wired in this build: a Postgres-backed
// RecordStore/ClusterStore was never built (see DESIGN.md), so a
// "postgres" driver is accepted by config validation but rejected here
// with a clear error rather than silently falling back to memory.
func (app *App) initStore() error {
	switch app.config.Store.Driver {
	case "", "memory":
		app.store = memstore.New(domain.RealClock{})
		return nil
	default:
		return fmt.Errorf("store driver %q is not implemented by this build; use \"memory\"", app.config.Store.Driver)
	}
}

// initLock selects the advisory lock implementation. Like the store,
// only the in-memory lock is wired for the "memory" driver; a
// "postgres" driver requires a *sql.DB this single-process demo server
// never constructs (lock.PostgresAdvisory is ready to take one — see
// DESIGN.md).
func (app *App) initLock() {
	app.lk = lock.NewInMemory()
}

func (app *App) initHTTPServer(clock domain.Clock) {
	router := httpapi.NewRouter(&httpapi.API{
		Store:    app.store,
		Dedup:    app.dedupOrch,
		Overlap:  app.overlapOrch,
		Importer: app.importerOrch,
		Queue:    app.queue,
		Clock:    clock,
		Logger:   app.logger,
	})
	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
	}
}

func (app *App) initMetricsServer() {
	if !app.config.Metrics.Enabled {
		return
	}
	addr := fmt.Sprintf("%s:%d", app.config.Metrics.Host, app.config.Metrics.Port)
	app.metricsServer = metrics.NewMetricsServer(addr, app.logger)
}

// Start brings up the worker pool, the reaper sweep, the metrics
// server, and the HTTP façade, in that order. The HTTP server runs in
// its own goroutine so Start never blocks.
func (app *App) Start() error {
	app.logger.Info("starting litreview-dedupe")

	app.queue.Start()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reaper.Run(app.ctx)
	}()

	if app.metricsServer != nil {
		if err := app.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.logger.WithField("addr", app.httpServer.Addr).Info("starting HTTP server")
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.WithError(err).Error("HTTP server error")
		}
	}()

	app.logger.Info("litreview-dedupe started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse dependency order: HTTP
// server first (stop accepting new work), then the background workers,
// then the metrics server. Errors from individual components are
// logged but never prevent the rest of the shutdown from proceeding.
func (app *App) Stop() error {
	app.logger.Info("stopping litreview-dedupe")
	app.cancel()

	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.httpServer.Shutdown(ctx); err != nil {
			app.logger.WithError(err).Error("failed to shut down HTTP server")
		}
	}

	app.queue.Stop()

	if app.metricsServer != nil {
		if err := app.metricsServer.Stop(); err != nil {
			app.logger.WithError(err).Error("failed to stop metrics server")
		}
	}

	app.wg.Wait()
	app.logger.Info("litreview-dedupe stopped")
	return nil
}

// Run starts the application and blocks until SIGINT or SIGTERM, then
// shuts down gracefully.
func (app *App) Run() error {
	if err := app.Start(); err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	app.logger.Info("shutdown signal received")
	return app.Stop()
}
