package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  cron: "0 2 * * *"
  timezone: Europe/Oslo
  caps:
    critical: 100
oracle:
  base_url: https://freshness.example.com
  timeout: 10s
  cache_ttl: 24h
  rate_per_sec: 25
executor:
  workers: 50
  run_deadline: 2h
registry:
  path: /tmp/registry.db
run_store:
  path: /tmp/runs.db
notifier:
  base_url: https://notify.example.com
`

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Scheduler.Enabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Scheduler.Caps.Critical != 100 {
		t.Fatalf("caps not decoded: %+v", cfg.Scheduler.Caps)
	}
	if !cfg.NotifierEnabled() {
		t.Fatal("notifier should default to enabled")
	}
	if got, err := ParseDurationField("executor.run_deadline", cfg.Executor.RunDeadline); err != nil || got != 2*time.Hour {
		t.Fatalf("run_deadline = %v, %v", got, err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed snapshot")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validYAML, "workers: 50", "wokers: 50", 1)
	m := NewManager(writeConfig(t, "config.yaml", bad))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "missing oracle url", mutate: func(c *Config) { c.Oracle.BaseURL = "" }},
		{name: "bad duration", mutate: func(c *Config) { c.Oracle.Timeout = "ten seconds" }},
		{name: "negative rate", mutate: func(c *Config) { c.Oracle.RatePerSec = -1 }},
		{name: "negative cap", mutate: func(c *Config) { c.Scheduler.Caps.Low = -5 }},
		{name: "scheduler without cron", mutate: func(c *Config) { c.Scheduler.Cron = "" }},
		{name: "unknown timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }},
		{name: "notifier without url", mutate: func(c *Config) { c.Notifier.BaseURL = "" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, "config.yaml", validYAML))
			cfg, err := m.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNotifierToggle(t *testing.T) {
	t.Parallel()
	off := strings.Replace(validYAML, "notifier:", "notifier:\n  enabled: false", 1)
	m := NewManager(writeConfig(t, "config.yaml", off))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NotifierEnabled() {
		t.Fatal("expected notifier disabled")
	}
	// Disabled notifier does not require a base URL.
	cfg.Notifier.BaseURL = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if _, err := ParseDurationField("x", "90m"); err != nil {
		t.Fatalf("valid duration rejected: %v", err)
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default not applied: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for junk duration")
	}
}
