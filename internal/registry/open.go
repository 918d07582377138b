package registry

import (
	"errors"
	"strings"
	"time"

	logx "github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// Config configures the registry adapter.
//
// Driver values:
//   - "sqlite": SQLite database file (default when a path is set)
//   - "memory": dependency-free in-memory backend (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is a Registry with local lifecycle and seeding, backing the external
// Chemical Registry boundary in deployments where the monitor reads the
// registry database directly.
type Store interface {
	Registry
	Upsert(rec Record) error
	Close() error
}

// Open initializes the configured registry adapter.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMem(), nil
	default:
		return nil, errors.New("unknown registry driver: " + driver)
	}
}
