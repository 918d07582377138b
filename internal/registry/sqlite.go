package registry

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

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("registry path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
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

// classPredicate maps a hazard band to its SQL predicate. The bands are
// disjoint so a record matches exactly one non-focused class.
func classPredicate(class TierClass, focus HazardFocus) string {
	switch class {
	case ClassCritical:
		switch focus {
		case FocusCMR:
			return "is_cmr = 1"
		case FocusSVHC:
			return "is_svhc = 1"
		default:
			return "(is_cmr = 1 OR is_svhc = 1)"
		}
	case ClassHigh:
		return "is_cmr = 0 AND is_svhc = 0 AND hazard_level >= 3"
	case ClassMedium:
		return "is_cmr = 0 AND is_svhc = 0 AND hazard_level IN (1, 2)"
	default:
		return "is_cmr = 0 AND is_svhc = 0 AND (hazard_level IS NULL OR hazard_level <= 0)"
	}
}

func (s *sqliteStore) SelectDue(ctx context.Context, q Query) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("registry closed")
	}

	// Never-checked first (NULLs sort first under ASC in SQLite), then
	// oldest-checked-first; id breaks ties deterministically.
	query := fmt.Sprintf(`SELECT id, tenant_id, status, is_cmr, is_svhc, hazard_level, quantity,
        supplier, product_id, sds_date, download_ref, last_checked_at
        FROM chemical_records
        WHERE status = 'active'
          AND supplier <> '' AND product_id <> ''
          AND (last_checked_at IS NULL OR last_checked_at <= ?)
          AND %s
        ORDER BY last_checked_at ASC, id ASC`, classPredicate(q.Class, q.Focus))

	args := []any{timeArg(q.CheckedBefore)}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select due records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) MarkChecked(ctx context.Context, recordID string, at time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("registry closed")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chemical_records SET last_checked_at = ? WHERE id = ?`,
		timeArg(at), recordID,
	)
	if err != nil {
		return fmt.Errorf("mark checked %s: %w", recordID, err)
	}
	return affectedOne(res, recordID)
}

func (s *sqliteStore) ApplyRevision(ctx context.Context, recordID string, revisionDate time.Time, downloadRef string) error {
	if s == nil || s.db == nil {
		return errors.New("registry closed")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chemical_records SET sds_date = ?, download_ref = ? WHERE id = ?`,
		timeArg(revisionDate), nullStr(downloadRef), recordID,
	)
	if err != nil {
		return fmt.Errorf("apply revision %s: %w", recordID, err)
	}
	return affectedOne(res, recordID)
}

func (s *sqliteStore) Reclassify(ctx context.Context, recordID string, rc Reclassification) error {
	if s == nil || s.db == nil {
		return errors.New("registry closed")
	}
	if rc.Empty() {
		return nil
	}

	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if rc.IsCMR != nil {
		sets = append(sets, "is_cmr = ?")
		args = append(args, boolArg(*rc.IsCMR))
	}
	if rc.IsSVHC != nil {
		sets = append(sets, "is_svhc = ?")
		args = append(args, boolArg(*rc.IsSVHC))
	}
	if rc.HazardLevel != nil {
		sets = append(sets, "hazard_level = ?")
		if *rc.HazardLevel == HazardLevelAbsent {
			args = append(args, nil)
		} else {
			args = append(args, *rc.HazardLevel)
		}
	}
	args = append(args, recordID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE chemical_records SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("reclassify %s: %w", recordID, err)
	}
	return affectedOne(res, recordID)
}

func (s *sqliteStore) Upsert(rec Record) error {
	if s == nil || s.db == nil {
		return errors.New("registry closed")
	}
	status := rec.Status
	if status == "" {
		status = StatusActive
	}
	var level any
	if rec.HazardLevel != HazardLevelAbsent {
		level = rec.HazardLevel
	}
	var qty any
	if rec.Quantity != nil {
		qty = *rec.Quantity
	}
	_, err := s.db.Exec(
		`INSERT INTO chemical_records
            (id, tenant_id, status, is_cmr, is_svhc, hazard_level, quantity,
             supplier, product_id, sds_date, download_ref, last_checked_at)
         VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
         ON CONFLICT(id) DO UPDATE SET
            tenant_id = excluded.tenant_id,
            status = excluded.status,
            is_cmr = excluded.is_cmr,
            is_svhc = excluded.is_svhc,
            hazard_level = excluded.hazard_level,
            quantity = excluded.quantity,
            supplier = excluded.supplier,
            product_id = excluded.product_id,
            sds_date = excluded.sds_date,
            download_ref = excluded.download_ref,
            last_checked_at = excluded.last_checked_at`,
		rec.ID, rec.TenantID, string(status), boolArg(rec.IsCMR), boolArg(rec.IsSVHC),
		level, qty, rec.Supplier, rec.ProductID,
		timeArgOrNil(rec.SDSDate), nullStr(rec.DownloadRef), timeArgOrNil(rec.LastCheckedAt),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		status    string
		cmr, svhc int
		level     sql.NullInt64
		qty       sql.NullFloat64
		sdsDate   sql.NullInt64
		dlRef     sql.NullString
		checkedAt sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &status, &cmr, &svhc, &level, &qty,
		&rec.Supplier, &rec.ProductID, &sdsDate, &dlRef, &checkedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.IsCMR = cmr != 0
	rec.IsSVHC = svhc != 0
	rec.HazardLevel = HazardLevelAbsent
	if level.Valid {
		rec.HazardLevel = int(level.Int64)
	}
	if qty.Valid {
		v := qty.Float64
		rec.Quantity = &v
	}
	rec.SDSDate = parseTime(sdsDate)
	if dlRef.Valid {
		rec.DownloadRef = dlRef.String
	}
	rec.LastCheckedAt = parseTime(checkedAt)
	return rec, nil
}

// Times are stored as unix milliseconds so staleness comparisons are exact.
func parseTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func timeArg(t time.Time) int64 {
	return t.UnixMilli()
}

func timeArgOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return timeArg(t)
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func affectedOne(res sql.Result, recordID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	return nil
}
