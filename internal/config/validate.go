package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks field-level constraints that strict decoding cannot express.
// It is used both at startup and as the Watch() validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("oracle.timeout", cfg.Oracle.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("oracle.cache_ttl", cfg.Oracle.CacheTTL); err != nil {
		return err
	}
	if cfg.Oracle.RatePerSec < 0 {
		return fmt.Errorf("oracle.rate_per_sec must be >= 0")
	}
	if strings.TrimSpace(cfg.Oracle.BaseURL) == "" {
		return fmt.Errorf("oracle.base_url is required")
	}

	if cfg.Executor.Workers < 0 {
		return fmt.Errorf("executor.workers must be >= 0")
	}
	if _, err := ParseDurationField("executor.run_deadline", cfg.Executor.RunDeadline); err != nil {
		return err
	}

	if _, err := ParseDurationField("registry.busy_timeout", cfg.Registry.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("run_store.busy_timeout", cfg.RunStore.BusyTimeout); err != nil {
		return err
	}

	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.Cron) == "" {
		return fmt.Errorf("scheduler.cron is required when scheduler is enabled")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: unknown timezone %q", tz)
		}
	}
	caps := cfg.Scheduler.Caps
	for name, v := range map[string]int{
		"critical": caps.Critical, "high": caps.High, "medium": caps.Medium, "low": caps.Low,
	} {
		if v < 0 {
			return fmt.Errorf("scheduler.caps.%s must be >= 0", name)
		}
	}

	if cfg.NotifierEnabled() && cfg.Notifier != nil {
		if strings.TrimSpace(cfg.Notifier.BaseURL) == "" {
			return fmt.Errorf("notifier.base_url is required when notifier is enabled")
		}
		if _, err := ParseDurationField("notifier.timeout", cfg.Notifier.Timeout); err != nil {
			return err
		}
	}

	return nil
}
