package config

import "testing"

func TestApplyDefaultsFillsEverythingWhenEnabled(t *testing.T) {
	cfg := &Config{}
	enabled := true
	cfg.App.DefaultConfigs = &enabled

	applyDefaults(cfg)

	if cfg.App.Name != "litreview-dedupe" {
		t.Errorf("expected default app name, got %q", cfg.App.Name)
	}
	if cfg.Server.Port != 8420 {
		t.Errorf("expected default server port 8420, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected default store driver memory, got %q", cfg.Store.Driver)
	}
	if cfg.JobQueue.MaxWorkers != 4 {
		t.Errorf("expected default max workers 4, got %d", cfg.JobQueue.MaxWorkers)
	}
	if cfg.Reaper.Staleness == 0 || cfg.Reaper.Interval == 0 {
		t.Errorf("expected reaper defaults to be filled, got %+v", cfg.Reaper)
	}
	if cfg.Engine.DefaultStrategyPreset != "medium" {
		t.Errorf("expected default strategy preset medium, got %q", cfg.Engine.DefaultStrategyPreset)
	}
}

func TestApplyDefaultsSkippedWhenDisabled(t *testing.T) {
	cfg := &Config{}
	disabled := false
	cfg.App.DefaultConfigs = &disabled

	applyDefaults(cfg)

	if cfg.App.Name != "" {
		t.Errorf("expected no default app name, got %q", cfg.App.Name)
	}
	if cfg.Server.Port != 0 {
		t.Errorf("expected no default server port, got %d", cfg.Server.Port)
	}
}

func TestApplyDefaultsRespectsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999

	applyDefaults(cfg)

	if cfg.Server.Port != 9999 {
		t.Errorf("expected explicit port to survive defaulting, got %d", cfg.Server.Port)
	}
}
