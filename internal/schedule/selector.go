package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/priority"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	logx "github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// Caps bounds how many records one run may select per tier.
// Zero values fall back to the defaults.
type Caps struct {
	Critical int
	High     int
	Medium   int
	Low      int
}

// DefaultCaps bounds worst-case load per run.
func DefaultCaps() Caps {
	return Caps{Critical: 10000, High: 5000, Medium: 7000, Low: 1000}
}

func (c Caps) forTier(t priority.Tier) int {
	d := DefaultCaps()
	switch t {
	case priority.TierCritical:
		return orDefault(c.Critical, d.Critical)
	case priority.TierHigh:
		return orDefault(c.High, d.High)
	case priority.TierMedium:
		return orDefault(c.Medium, d.Medium)
	default:
		return orDefault(c.Low, d.Low)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Selector picks the candidate set of records due for a check on a given day.
//
// Selection is capped per tier and ordered most-urgent-tier first; within a
// tier, never-checked records come first, then oldest-checked-first, which
// keeps truncation fair under sustained overload.
type Selector struct {
	reg registry.Registry
	log logx.Logger

	mu   sync.Mutex
	caps Caps
}

func NewSelector(reg registry.Registry, caps Caps, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{reg: reg, caps: caps, log: log}
}

// SetCaps swaps the per-tier caps at runtime (config reload).
func (s *Selector) SetCaps(caps Caps) {
	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
}

// SelectCandidates returns the records due for a check at now, in tier order.
// A registry query failure is structural and fatal to the run.
func (s *Selector) SelectCandidates(ctx context.Context, now time.Time) ([]registry.Record, error) {
	s.mu.Lock()
	caps := s.caps
	s.mu.Unlock()

	slots := ActiveSlots(now)
	if len(slots) == 0 {
		s.log.Debug("no tiers active today", logx.String("weekday", now.Weekday().String()))
		return nil, nil
	}

	var (
		selected []registry.Record
		seen     = map[string]struct{}{}
	)
	for _, slot := range slots {
		tierCap := caps.forTier(slot.Tier)
		cutoff := now.Add(-priority.Cadence(slot.Tier))

		q := registry.Query{
			Class:         slot.Tier.Class(),
			Focus:         slot.Focus,
			CheckedBefore: cutoff,
			Limit:         tierCap,
		}
		if slot.Tier == priority.TierLow {
			// The shard filter runs after the query, so the cap must not
			// truncate the candidate pool before sharding.
			q.Limit = 0
		}

		rows, err := s.reg.SelectDue(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("select %s candidates: %w", slot.Tier, err)
		}

		kept := 0
		for _, rec := range rows {
			if kept >= tierCap {
				break
			}
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			// Defense-in-depth: the query approximates tier and staleness on
			// raw attributes; re-derive both here as the source of truth.
			if priority.Classify(rec) != slot.Tier {
				continue
			}
			if !rec.Checkable() || !priority.NeedsCheck(rec, now) {
				continue
			}
			if slot.Tier == priority.TierLow && LowShardOf(rec.ID) != slot.LowShard {
				continue
			}
			seen[rec.ID] = struct{}{}
			selected = append(selected, rec)
			kept++
		}

		s.log.Debug("tier selected",
			logx.String("tier", slot.Tier.String()),
			logx.String("focus", slot.Focus.String()),
			logx.Int("candidates", kept),
			logx.Int("cap", tierCap))
	}

	return selected, nil
}
