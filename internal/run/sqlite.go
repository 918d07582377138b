package run

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// OpenStore initializes the configured run store. Driver "memory" yields a
// dependency-free backend for tests and dry runs.
func OpenStore(cfg StoreConfig, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemStore(), nil
	default:
		return nil, errors.New("unknown run store driver: " + driver)
	}
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg StoreConfig, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("run store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, rec Record) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (scheduled_for, started_at, finished_at, status,
		                  selected, checked, failures, skipped, digests_sent, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ScheduledFor.UnixMilli(),
		rec.StartedAt.UnixMilli(),
		nullTime(rec.FinishedAt),
		string(rec.Status),
		rec.Selected, rec.Checked, rec.Failures, rec.Skipped, rec.DigestsSent,
		rec.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Update(ctx context.Context, rec Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?,
		       selected = ?, checked = ?, failures = ?, skipped = ?,
		       digests_sent = ?, error = ?
		WHERE id = ?`,
		nullTime(rec.FinishedAt),
		string(rec.Status),
		rec.Selected, rec.Checked, rec.Failures, rec.Skipped, rec.DigestsSent,
		rec.Error,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %d: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update run %d: not found", rec.ID)
	}
	return nil
}

func (s *sqliteStore) HasCompleted(ctx context.Context, scheduledFor time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM runs WHERE scheduled_for = ? AND status = ?`,
		DateOf(scheduledFor).UnixMilli(), string(StatusCompleted),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query completed runs: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scheduled_for, started_at, finished_at, status,
		       selected, checked, failures, skipped, digests_sent, error
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			sched     int64
			started   int64
			finished  sql.NullInt64
			status    string
		)
		if err := rows.Scan(&rec.ID, &sched, &started, &finished, &status,
			&rec.Selected, &rec.Checked, &rec.Failures, &rec.Skipped,
			&rec.DigestsSent, &rec.Error); err != nil {
			return nil, err
		}
		rec.ScheduledFor = time.UnixMilli(sched).UTC()
		rec.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			rec.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		rec.Status = Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
