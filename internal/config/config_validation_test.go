package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{LogLevel: "info", LogFormat: "json"},
		Server: ServerConfig{Host: "0.0.0.0", Port: 8420},
		Store:  StoreConfig{Driver: "memory"},
		Lock:   LockConfig{Driver: "memory"},
		JobQueue: JobQueueConfig{
			MaxWorkers:      4,
			QueueSize:       100,
			JobTimeout:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Reaper:  ReaperConfig{Staleness: 15 * time.Minute, Interval: time.Minute},
		Metrics: MetricsConfig{Enabled: true, Port: 9421, Path: "/metrics"},
		Engine:  EngineConfig{DefaultStrategyPreset: "medium", FuzzyTitleThreshold: 0.92},
	}
}

func TestValidConfigPasses(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Errorf("expected a valid config to pass, got: %v", err)
	}
}

func TestInvalidServerPortFails(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("expected a server.port error, got: %v", err)
	}
}

func TestUnknownStoreDriverFails(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "sqlite"
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "store.driver") {
		t.Errorf("expected a store.driver error, got: %v", err)
	}
}

func TestPostgresStoreWithoutDSNFails(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = ""
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "store.dsn") {
		t.Errorf("expected a store.dsn error, got: %v", err)
	}
}

func TestPostgresLockWithoutPostgresStoreFails(t *testing.T) {
	cfg := validConfig()
	cfg.Lock.Driver = "postgres"
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "lock.driver postgres requires") {
		t.Errorf("expected a lock/store mismatch error, got: %v", err)
	}
}

func TestReaperIntervalLargerThanStalenessFails(t *testing.T) {
	cfg := validConfig()
	cfg.Reaper.Interval = time.Hour
	cfg.Reaper.Staleness = time.Minute
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "reaper.interval") {
		t.Errorf("expected a reaper.interval error, got: %v", err)
	}
}

func TestFuzzyThresholdOutOfRangeFails(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.FuzzyTitleThreshold = 1.5
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "fuzzy_title_threshold") {
		t.Errorf("expected a fuzzy_title_threshold error, got: %v", err)
	}
}

func TestMultipleFailuresAreAllReported(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Store.Driver = "sqlite"
	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "store.driver") {
		t.Errorf("expected both failures reported, got: %v", err)
	}
}
