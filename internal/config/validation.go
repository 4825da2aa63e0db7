package config

import (
	"fmt"
	"strings"
)

// ValidateConfig runs every section validator and joins their failures
// into a single error, mirroring the accumulate-then-report shape used
// elsewhere in this codebase for multi-field validation.
func ValidateConfig(cfg *Config) error {
	v := &configValidator{config: cfg}
	return v.validate()
}

type configValidator struct {
	config *Config
	errs   []error
}

func (v *configValidator) validate() error {
	v.validateApp()
	v.validateServer()
	v.validateStore()
	v.validateLock()
	v.validateJobQueue()
	v.validateReaper()
	v.validateMetrics()
	v.validateEngine()

	if len(v.errs) > 0 {
		return v.buildValidationError()
	}
	return nil
}

func (v *configValidator) fail(format string, args ...interface{}) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *configValidator) validateApp() {
	switch v.config.App.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		v.fail("app.log_level must be one of trace/debug/info/warn/error, got %q", v.config.App.LogLevel)
	}
	switch v.config.App.LogFormat {
	case "json", "text":
	default:
		v.fail("app.log_format must be json or text, got %q", v.config.App.LogFormat)
	}
}

func (v *configValidator) validateServer() {
	if v.config.Server.Port <= 0 || v.config.Server.Port > 65535 {
		v.fail("server.port must be between 1 and 65535, got %d", v.config.Server.Port)
	}
	if v.config.Server.Host == "" {
		v.fail("server.host must not be empty")
	}
}

func (v *configValidator) validateStore() {
	switch v.config.Store.Driver {
	case "memory":
	case "postgres":
		if v.config.Store.DSN == "" {
			v.fail("store.dsn is required when store.driver is postgres")
		}
	default:
		v.fail("store.driver must be memory or postgres, got %q", v.config.Store.Driver)
	}
}

func (v *configValidator) validateLock() {
	switch v.config.Lock.Driver {
	case "memory", "postgres":
	default:
		v.fail("lock.driver must be memory or postgres, got %q", v.config.Lock.Driver)
	}
	if v.config.Lock.Driver == "postgres" && v.config.Store.Driver != "postgres" {
		v.fail("lock.driver postgres requires store.driver postgres (advisory locks need a live connection pool)")
	}
}

func (v *configValidator) validateJobQueue() {
	if v.config.JobQueue.MaxWorkers <= 0 {
		v.fail("job_queue.max_workers must be positive, got %d", v.config.JobQueue.MaxWorkers)
	}
	if v.config.JobQueue.QueueSize <= 0 {
		v.fail("job_queue.queue_size must be positive, got %d", v.config.JobQueue.QueueSize)
	}
	if v.config.JobQueue.JobTimeout <= 0 {
		v.fail("job_queue.job_timeout must be positive")
	}
	if v.config.JobQueue.ShutdownTimeout <= 0 {
		v.fail("job_queue.shutdown_timeout must be positive")
	}
}

func (v *configValidator) validateReaper() {
	if v.config.Reaper.Staleness <= 0 {
		v.fail("reaper.staleness must be positive")
	}
	if v.config.Reaper.Interval <= 0 {
		v.fail("reaper.interval must be positive")
	}
	if v.config.Reaper.Interval > v.config.Reaper.Staleness {
		v.fail("reaper.interval must not exceed reaper.staleness or jobs could go stale between sweeps")
	}
}

func (v *configValidator) validateMetrics() {
	if !v.config.Metrics.Enabled {
		return
	}
	if v.config.Metrics.Port <= 0 || v.config.Metrics.Port > 65535 {
		v.fail("metrics.port must be between 1 and 65535, got %d", v.config.Metrics.Port)
	}
	if v.config.Metrics.Path == "" || !strings.HasPrefix(v.config.Metrics.Path, "/") {
		v.fail("metrics.path must start with /, got %q", v.config.Metrics.Path)
	}
}

func (v *configValidator) validateEngine() {
	if v.config.Engine.FuzzyTitleThreshold <= 0 || v.config.Engine.FuzzyTitleThreshold > 1 {
		v.fail("engine.fuzzy_title_threshold must be in (0, 1], got %f", v.config.Engine.FuzzyTitleThreshold)
	}
}

func (v *configValidator) buildValidationError() error {
	msgs := make([]string, len(v.errs))
	for i, e := range v.errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d configuration error(s):\n- %s", len(v.errs), strings.Join(msgs, "\n- "))
}
