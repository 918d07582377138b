// Package priority derives monitoring priority tiers from hazard attributes.
//
// A record's tier is a pure function of (IsCMR, IsSVHC, HazardLevel), in that
// precedence order: the regulatory flags dominate regardless of level. Tiers
// are never stored; they are recomputed from current attributes on every run,
// so a reclassified record automatically re-enters at its new tier.
package priority

import (
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
)

// Tier is a monitoring priority band. Order matters: lower values are more
// urgent and are always selected first.
type Tier int

const (
	TierCritical Tier = iota
	TierHigh
	TierMedium
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// Class maps a tier to the registry's hazard-band query class.
func (t Tier) Class() registry.TierClass {
	switch t {
	case TierCritical:
		return registry.ClassCritical
	case TierHigh:
		return registry.ClassHigh
	case TierMedium:
		return registry.ClassMedium
	default:
		return registry.ClassLow
	}
}

// Tiers lists all tiers in selection order (most urgent first).
func Tiers() []Tier {
	return []Tier{TierCritical, TierHigh, TierMedium, TierLow}
}

// Classify maps a record's hazard attributes to its tier.
// Total over any well-formed record; no side effects.
func Classify(rec registry.Record) Tier {
	switch {
	case rec.IsCMR || rec.IsSVHC:
		return TierCritical
	case rec.HazardLevel >= 3:
		return TierHigh
	case rec.HazardLevel == 1 || rec.HazardLevel == 2:
		return TierMedium
	default:
		return TierLow
	}
}

// Cadence returns the required re-check interval for a tier.
func Cadence(t Tier) time.Duration {
	const day = 24 * time.Hour
	switch t {
	case TierCritical:
		return 7 * day
	case TierHigh:
		return 30 * day
	case TierMedium:
		return 90 * day
	default:
		return 365 * day
	}
}

// NeedsCheck reports whether the record is due for a freshness check at now:
// never checked, or the tier cadence has fully elapsed since the last check.
func NeedsCheck(rec registry.Record, now time.Time) bool {
	if rec.LastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(rec.LastCheckedAt) >= Cadence(Classify(rec))
}
