package priority

import (
	"testing"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
)

func TestClassifyPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  registry.Record
		want Tier
	}{
		{name: "cmr", rec: registry.Record{IsCMR: true}, want: TierCritical},
		{name: "svhc", rec: registry.Record{IsSVHC: true}, want: TierCritical},
		{name: "cmr beats low level", rec: registry.Record{IsCMR: true, HazardLevel: 1}, want: TierCritical},
		{name: "svhc beats high level", rec: registry.Record{IsSVHC: true, HazardLevel: 5}, want: TierCritical},
		{name: "level 3", rec: registry.Record{HazardLevel: 3}, want: TierHigh},
		{name: "level 5", rec: registry.Record{HazardLevel: 5}, want: TierHigh},
		{name: "level 2", rec: registry.Record{HazardLevel: 2}, want: TierMedium},
		{name: "level 1", rec: registry.Record{HazardLevel: 1}, want: TierMedium},
		{name: "level 0", rec: registry.Record{HazardLevel: 0}, want: TierLow},
		{name: "level absent", rec: registry.Record{HazardLevel: registry.HazardLevelAbsent}, want: TierLow},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.rec); got != tt.want {
				t.Fatalf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyMonotonicUnderEscalation(t *testing.T) {
	t.Parallel()
	// Raising any single hazard attribute must never demote the tier.
	base := registry.Record{HazardLevel: 2}
	before := Classify(base)

	escalated := base
	escalated.HazardLevel = 4
	if got := Classify(escalated); got > before {
		t.Fatalf("raising hazard level demoted tier: %v -> %v", before, got)
	}
	escalated = base
	escalated.IsCMR = true
	if got := Classify(escalated); got > before {
		t.Fatalf("setting CMR demoted tier: %v -> %v", before, got)
	}
}

func TestCadence(t *testing.T) {
	t.Parallel()
	const day = 24 * time.Hour
	tests := []struct {
		tier Tier
		want time.Duration
	}{
		{TierCritical, 7 * day},
		{TierHigh, 30 * day},
		{TierMedium, 90 * day},
		{TierLow, 365 * day},
	}
	for _, tt := range tests {
		if got := Cadence(tt.tier); got != tt.want {
			t.Fatalf("Cadence(%v) = %v, want %v", tt.tier, got, tt.want)
		}
	}
}

func TestNeedsCheckBoundary(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC)
	rec := registry.Record{HazardLevel: 3} // 30-day cadence

	rec.LastCheckedAt = now.Add(-29 * 24 * time.Hour)
	if NeedsCheck(rec, now) {
		t.Fatal("29 days elapsed, expected not due")
	}
	rec.LastCheckedAt = now.Add(-30 * 24 * time.Hour)
	if !NeedsCheck(rec, now) {
		t.Fatal("30 days elapsed, expected due")
	}
	rec.LastCheckedAt = time.Time{}
	if !NeedsCheck(rec, now) {
		t.Fatal("never checked, expected due")
	}
}
