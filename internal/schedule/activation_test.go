package schedule

import (
	"testing"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/priority"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 6, 0, 0, 0, time.UTC)
}

func TestActiveSlotsRotation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		day   time.Time
		tier  priority.Tier
		focus registry.HazardFocus
	}{
		{name: "monday cmr", day: date(2026, time.March, 2), tier: priority.TierCritical, focus: registry.FocusCMR},
		{name: "tuesday svhc", day: date(2026, time.March, 3), tier: priority.TierCritical, focus: registry.FocusSVHC},
		{name: "wednesday high", day: date(2026, time.March, 4), tier: priority.TierHigh, focus: registry.FocusAny},
		{name: "thursday medium", day: date(2026, time.March, 5), tier: priority.TierMedium, focus: registry.FocusAny},
		{name: "friday low", day: date(2026, time.March, 6), tier: priority.TierLow, focus: registry.FocusAny},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			slots := ActiveSlots(tt.day)
			if len(slots) != 1 {
				t.Fatalf("expected 1 slot, got %d", len(slots))
			}
			if slots[0].Tier != tt.tier || slots[0].Focus != tt.focus {
				t.Fatalf("slot = %+v, want tier %v focus %v", slots[0], tt.tier, tt.focus)
			}
		})
	}
}

func TestActiveSlotsWeekend(t *testing.T) {
	t.Parallel()
	for _, d := range []time.Time{date(2026, time.March, 7), date(2026, time.March, 8)} {
		if slots := ActiveSlots(d); len(slots) != 0 {
			t.Fatalf("%s: expected no slots, got %v", d.Weekday(), slots)
		}
	}
}

func TestLowShardStableAndBounded(t *testing.T) {
	t.Parallel()
	ids := []string{"rec-1", "rec-2", "chem/abc", "chem/abd", ""}
	for _, id := range ids {
		s1 := LowShardOf(id)
		s2 := LowShardOf(id)
		if s1 != s2 {
			t.Fatalf("shard not stable for %q: %d vs %d", id, s1, s2)
		}
		if s1 < 0 || s1 >= LowShardCount {
			t.Fatalf("shard out of range for %q: %d", id, s1)
		}
	}
}

func TestWeekShardCyclesAcrossYear(t *testing.T) {
	t.Parallel()
	seen := map[int]bool{}
	// 52 consecutive Fridays must touch 52 distinct shards.
	d := date(2026, time.January, 2)
	for i := 0; i < 52; i++ {
		slots := ActiveSlots(d)
		if len(slots) != 1 {
			t.Fatalf("expected low slot on %v", d)
		}
		seen[slots[0].LowShard] = true
		d = d.AddDate(0, 0, 7)
	}
	if len(seen) != LowShardCount {
		t.Fatalf("expected %d distinct shards, got %d", LowShardCount, len(seen))
	}
}
