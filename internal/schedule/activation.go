// Package schedule decides which records are due for a freshness check on a
// given day and selects them within per-tier caps.
//
// Activation is a declarative table over (tier, date): a fixed weekly rotation
// approximates each tier's cadence, while priority.NeedsCheck stays the source
// of truth so a record is never checked more often than its cadence even when
// the rotation fires more frequently.
package schedule

import (
	"hash/fnv"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/priority"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
)

// LowShardCount splits the LOW population into weekly shards so the full set
// is covered once per year.
const LowShardCount = 52

// Slot is one tier activation for a day. For TierLow, LowShard selects the
// 1/52 slice of the population that is due this week.
type Slot struct {
	Tier     priority.Tier
	Focus    registry.HazardFocus
	LowShard int
}

// ActiveSlots returns the tier activations for the given date, most urgent
// first. Weekend days have no activations; the run still completes empty.
//
// Rotation:
//
//	Mon  CRITICAL (CMR-flagged)
//	Tue  CRITICAL (SVHC-flagged)
//	Wed  HIGH
//	Thu  MEDIUM
//	Fri  LOW (weekly 1/52 shard)
//
// HIGH and MEDIUM activate every week; their 30/90-day cadences are enforced
// by the NeedsCheck filter, which spreads each population over the cadence
// window instead of bursting it into a single week.
func ActiveSlots(date time.Time) []Slot {
	switch date.Weekday() {
	case time.Monday:
		return []Slot{{Tier: priority.TierCritical, Focus: registry.FocusCMR}}
	case time.Tuesday:
		return []Slot{{Tier: priority.TierCritical, Focus: registry.FocusSVHC}}
	case time.Wednesday:
		return []Slot{{Tier: priority.TierHigh, Focus: registry.FocusAny}}
	case time.Thursday:
		return []Slot{{Tier: priority.TierMedium, Focus: registry.FocusAny}}
	case time.Friday:
		return []Slot{{Tier: priority.TierLow, Focus: registry.FocusAny, LowShard: weekShard(date)}}
	default:
		return nil
	}
}

func weekShard(date time.Time) int {
	_, week := date.ISOWeek()
	return (week - 1) % LowShardCount
}

// LowShardOf assigns a record to its stable LOW coverage shard.
func LowShardOf(recordID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recordID))
	return int(h.Sum32() % LowShardCount)
}
