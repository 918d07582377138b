package run

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu   sync.Mutex
	seq  int64
	recs map[int64]Record
}

func NewMemStore() *MemStore {
	return &MemStore{recs: map[int64]Record{}}
}

func (m *MemStore) Create(_ context.Context, rec Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.ID = m.seq
	m.recs[rec.ID] = rec
	return rec.ID, nil
}

func (m *MemStore) Update(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return fmt.Errorf("update run %d: not found", rec.ID)
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemStore) HasCompleted(_ context.Context, scheduledFor time.Time) (bool, error) {
	date := DateOf(scheduledFor)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.Status == StatusCompleted && rec.ScheduledFor.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for id := m.seq; id >= 1 && len(out) < limit; id-- {
		if rec, ok := m.recs[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
