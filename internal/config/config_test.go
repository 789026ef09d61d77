package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("log_level: debug\nescalation:\n  risk_threshold: 0.5\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %s", cfg.LogLevel)
	}
	if cfg.Escalation.RiskThreshold != 0.5 {
		t.Fatalf("risk threshold = %v", cfg.Escalation.RiskThreshold)
	}
	if cfg.Escalation.ScanInterval != 15*time.Minute {
		t.Fatalf("scan interval default missing: %v", cfg.Escalation.ScanInterval)
	}
	if cfg.Ingest.ChannelBuffer != 1000 {
		t.Fatalf("channel buffer default missing: %d", cfg.Ingest.ChannelBuffer)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := []byte(`{"escalation": {"issue_severity_threshold": 0.9}}`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Escalation.IssueSeverityThreshold != 0.9 {
		t.Fatalf("severity threshold = %v", cfg.Escalation.IssueSeverityThreshold)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Escalation.RiskThreshold = 1.5 },
		func(c *Config) { c.Escalation.IssueSeverityThreshold = -0.1 },
		func(c *Config) { c.Escalation.RiskHysteresis = 1 },
		func(c *Config) { c.Escalation.ScanInterval = 0 },
		func(c *Config) { c.API.Enabled = true; c.API.Addr = "" },
		func(c *Config) { c.Ingest.Kafka.Enabled = true },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestManagerReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Get().LogLevel != "info" {
		t.Fatalf("initial log level = %s", m.Get().LogLevel)
	}

	// Backdate the recorded mtime so the rewrite below always looks newer.
	m.modTime = m.modTime.Add(-time.Hour)
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	needs, err := m.NeedsReload()
	if err != nil {
		t.Fatalf("needs reload: %v", err)
	}
	if !needs {
		t.Fatalf("expected reload to be needed")
	}
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("reloaded log level = %s", cfg.LogLevel)
	}
}

func TestStaticManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	m := NewStaticManager(cfg)
	if m.Get().LogLevel != "debug" {
		t.Fatalf("static manager config lost")
	}
	if _, err := m.Reload(); err == nil {
		t.Fatalf("reload on static manager must fail")
	}
	next := DefaultConfig()
	next.LogLevel = "error"
	if err := m.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Get().LogLevel != "error" {
		t.Fatalf("update not applied")
	}
}
