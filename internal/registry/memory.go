package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Mem is a dependency-free in-memory registry backend.
// It mirrors the SQLite adapter's selection semantics and is used for tests
// and dry runs.
type Mem struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMem() *Mem {
	return &Mem{recs: map[string]Record{}}
}

func (m *Mem) Close() error { return nil }

func (m *Mem) Upsert(rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	m.mu.Lock()
	m.recs[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the record, for tests and diagnostics.
func (m *Mem) Get(recordID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[recordID]
	return rec, ok
}

func (m *Mem) SelectDue(_ context.Context, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.recs {
		if rec.Status != StatusActive || !rec.Checkable() {
			continue
		}
		if !rec.LastCheckedAt.IsZero() && rec.LastCheckedAt.UnixMilli() > q.CheckedBefore.UnixMilli() {
			continue
		}
		if !matchesClass(rec, q.Class, q.Focus) {
			continue
		}
		out = append(out, rec)
	}

	// Never-checked first, then oldest-checked-first, id as tie-break.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastCheckedAt.IsZero() != b.LastCheckedAt.IsZero() {
			return a.LastCheckedAt.IsZero()
		}
		if !a.LastCheckedAt.Equal(b.LastCheckedAt) {
			return a.LastCheckedAt.Before(b.LastCheckedAt)
		}
		return a.ID < b.ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesClass(rec Record, class TierClass, focus HazardFocus) bool {
	switch class {
	case ClassCritical:
		switch focus {
		case FocusCMR:
			return rec.IsCMR
		case FocusSVHC:
			return rec.IsSVHC
		default:
			return rec.IsCMR || rec.IsSVHC
		}
	case ClassHigh:
		return !rec.IsCMR && !rec.IsSVHC && rec.HazardLevel >= 3
	case ClassMedium:
		return !rec.IsCMR && !rec.IsSVHC && (rec.HazardLevel == 1 || rec.HazardLevel == 2)
	default:
		return !rec.IsCMR && !rec.IsSVHC && rec.HazardLevel <= 0
	}
}

func (m *Mem) MarkChecked(_ context.Context, recordID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[recordID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	rec.LastCheckedAt = at
	m.recs[recordID] = rec
	return nil
}

func (m *Mem) ApplyRevision(_ context.Context, recordID string, revisionDate time.Time, downloadRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[recordID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	rec.SDSDate = revisionDate
	rec.DownloadRef = downloadRef
	m.recs[recordID] = rec
	return nil
}

func (m *Mem) Reclassify(_ context.Context, recordID string, rc Reclassification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[recordID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	if rc.IsCMR != nil {
		rec.IsCMR = *rc.IsCMR
	}
	if rc.IsSVHC != nil {
		rec.IsSVHC = *rc.IsSVHC
	}
	if rc.HazardLevel != nil {
		rec.HazardLevel = *rc.HazardLevel
	}
	m.recs[recordID] = rec
	return nil
}
