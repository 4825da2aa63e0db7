package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"litreview-dedupe/pkg/errors"
)

// Config is the root configuration for a dedupserver process: the HTTP
// façade, the persistence gateway, the per-project advisory lock, the
// background job queue, and the engine's default strategy/overlap
// knobs.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Lock     LockConfig     `yaml:"lock"`
	JobQueue JobQueueConfig `yaml:"job_queue"`
	Reaper   ReaperConfig   `yaml:"reaper"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Engine   EngineConfig   `yaml:"engine"`
}

// AppConfig carries process-wide identity and logging settings.
type AppConfig struct {
	Name           string `yaml:"name"`
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	DefaultConfigs *bool  `yaml:"default_configs"`
}

// ServerConfig is the HTTP façade's bind address.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig selects and configures the persistence gateway
// implementation.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn"`
}

// LockConfig selects and configures the per-project advisory lock.
type LockConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
}

// JobQueueConfig mirrors jobqueue.Config.
type JobQueueConfig struct {
	MaxWorkers      int           `yaml:"max_workers"`
	QueueSize       int           `yaml:"queue_size"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ReaperConfig mirrors jobqueue.Reaper's staleness sweep.
type ReaperConfig struct {
	Staleness time.Duration `yaml:"staleness"`
	Interval  time.Duration `yaml:"interval"`
}

// MetricsConfig is the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// EngineConfig carries the out-of-the-box strategy preset and overlap
// thresholds applied when a project has not configured its own.
type EngineConfig struct {
	DefaultStrategyPreset string  `yaml:"default_strategy_preset"`
	FuzzyTitleThreshold   float64 `yaml:"fuzzy_title_threshold"`
}

// LoadConfig loads a YAML config file (if non-empty and present),
// applies defaults for anything left unset, applies environment
// overrides, and validates the result.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			fmt.Printf("Warning: failed to load config file %s: %v\n", configFile, err)
		} else {
			fmt.Printf("Loaded configuration from file: %s\n", configFile)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, errors.ConfigError("LoadConfig", err.Error()).Wrap(err)
	}

	fmt.Println("configuration validation passed")
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// shouldApplyDefaults honors the DEDUP_DEFAULT_CONFIGS escape hatch: an
// operator who wants to catch an incomplete config at validation time
// rather than silently running on defaults can disable this.
func shouldApplyDefaults(cfg *Config) bool {
	if v := os.Getenv("DEDUP_DEFAULT_CONFIGS"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			return enabled
		}
	}
	if cfg.App.DefaultConfigs == nil {
		return true
	}
	return *cfg.App.DefaultConfigs
}

func applyDefaults(cfg *Config) {
	if !shouldApplyDefaults(cfg) {
		fmt.Println("default configurations disabled - using only explicitly configured values")
		return
	}

	if cfg.App.Name == "" {
		cfg.App.Name = "litreview-dedupe"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "json"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "memory"
	}

	if cfg.JobQueue.MaxWorkers == 0 {
		cfg.JobQueue.MaxWorkers = 4
	}
	if cfg.JobQueue.QueueSize == 0 {
		cfg.JobQueue.QueueSize = 256
	}
	if cfg.JobQueue.JobTimeout == 0 {
		cfg.JobQueue.JobTimeout = 10 * time.Minute
	}
	if cfg.JobQueue.ShutdownTimeout == 0 {
		cfg.JobQueue.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Reaper.Staleness == 0 {
		cfg.Reaper.Staleness = 15 * time.Minute
	}
	if cfg.Reaper.Interval == 0 {
		cfg.Reaper.Interval = time.Minute
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9421
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "0.0.0.0"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Engine.DefaultStrategyPreset == "" {
		cfg.Engine.DefaultStrategyPreset = "medium"
	}
	if cfg.Engine.FuzzyTitleThreshold == 0 {
		cfg.Engine.FuzzyTitleThreshold = 0.92
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := getEnvString("DEDUP_LOG_LEVEL", ""); v != "" {
		cfg.App.LogLevel = v
	}
	if v := getEnvString("DEDUP_STORE_DSN", ""); v != "" {
		cfg.Store.DSN = v
	}
	if v := getEnvString("DEDUP_STORE_DRIVER", ""); v != "" {
		cfg.Store.Driver = v
	}
	if v := getEnvString("DEDUP_LOCK_DRIVER", ""); v != "" {
		cfg.Lock.Driver = v
	}
	if v := getEnvInt("DEDUP_SERVER_PORT", 0); v != 0 {
		cfg.Server.Port = v
	}
	if v := getEnvInt("DEDUP_METRICS_PORT", 0); v != 0 {
		cfg.Metrics.Port = v
	}
	if v := getEnvInt("DEDUP_JOB_QUEUE_MAX_WORKERS", 0); v != 0 {
		cfg.JobQueue.MaxWorkers = v
	}
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
