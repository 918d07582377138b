package config

// Config is the top-level configuration of the SDS freshness monitor.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "2h").
// Unknown keys are rejected at decode time so typos surface early.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Oracle    OracleConfig    `json:"oracle"`
	Executor  ExecutorConfig  `json:"executor"`
	Registry  StorageConfig   `json:"registry"`
	RunStore  StorageConfig   `json:"run_store"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the daily trigger and the per-tier selection caps.
//
// Cron accepts robfig/cron specs ("0 6 * * *") including descriptors
// ("@daily"). Timezone is an IANA TZ name; empty means the host local zone.
type SchedulerConfig struct {
	Enabled  bool     `json:"enabled"`
	Cron     string   `json:"cron,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
	Caps     TierCaps `json:"caps,omitempty"`
}

// TierCaps bounds how many records a single run may select per tier.
// Zero values fall back to defaults (critical 10000, high 5000, medium 7000,
// low 1000).
type TierCaps struct {
	Critical int `json:"critical,omitempty"`
	High     int `json:"high,omitempty"`
	Medium   int `json:"medium,omitempty"`
	Low      int `json:"low,omitempty"`
}

// OracleConfig controls the external freshness lookup client.
type OracleConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout is the per-call timeout (default "10s").
	Timeout string `json:"timeout,omitempty"`
	// CacheTTL is how long a (supplier, product) lookup stays cached
	// (default "24h").
	CacheTTL string `json:"cache_ttl,omitempty"`
	// RatePerSec limits outbound oracle calls. 0 disables limiting.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// ExecutorConfig controls the bounded check executor.
type ExecutorConfig struct {
	// Workers is the concurrency limit for in-flight checks (default 50).
	Workers int `json:"workers,omitempty"`
	// RunDeadline is the outer run deadline after which no new checks start
	// (default "2h").
	RunDeadline string `json:"run_deadline,omitempty"`
}

// StorageConfig describes a SQLite-backed store.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": dependency-free in-memory backend (tests, dry runs)
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifierConfig controls digest delivery to the notification sink.
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

// NotifierEnabled resolves the optional notifier toggle.
func (c *Config) NotifierEnabled() bool {
	if c.Notifier == nil {
		return true
	}
	if c.Notifier.Enabled == nil {
		return true
	}
	return *c.Notifier.Enabled
}
