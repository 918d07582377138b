package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by single-record operations for unknown IDs.
	ErrNotFound = errors.New("registry: record not found")
)

// Status is the lifecycle state of a chemical record as owned by the registry.
// Only ACTIVE records are eligible for freshness checks.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// HazardFocus narrows a CRITICAL-tier selection to one regulatory family.
// The weekly rotation checks CMR-flagged records and SVHC-flagged records on
// separate days; non-critical tiers always use FocusAny.
type HazardFocus int

const (
	FocusAny HazardFocus = iota
	FocusCMR
	FocusSVHC
)

func (f HazardFocus) String() string {
	switch f {
	case FocusCMR:
		return "cmr"
	case FocusSVHC:
		return "svhc"
	default:
		return "any"
	}
}

// HazardLevelAbsent marks a record without a numeric hazard level.
const HazardLevelAbsent = -1

// Record is a chemical record as seen by the freshness monitor.
//
// The registry owns creation, editing, and deletion; this subsystem only
// mutates LastCheckedAt and, when the oracle confirms changes, SDSDate,
// DownloadRef, and the denormalized hazard flags.
//
// Zero time values mean "absent". HazardLevel uses HazardLevelAbsent (-1)
// for records without a classification level.
type Record struct {
	ID       string
	TenantID string

	Status Status

	IsCMR       bool
	IsSVHC      bool
	HazardLevel int
	Quantity    *float64

	Supplier  string
	ProductID string

	SDSDate       time.Time
	DownloadRef   string
	LastCheckedAt time.Time
}

// Checkable reports whether the record carries the supplier linkage required
// for an oracle lookup. A record missing either field is never eligible.
func (r Record) Checkable() bool {
	return r.Supplier != "" && r.ProductID != ""
}

// Reclassification carries oracle-confirmed hazard changes to apply to a
// record's denormalized hazard fields. Nil fields are left untouched.
type Reclassification struct {
	IsCMR       *bool
	IsSVHC      *bool
	HazardLevel *int
}

// Empty reports whether the reclassification changes nothing.
func (rc Reclassification) Empty() bool {
	return rc.IsCMR == nil && rc.IsSVHC == nil && rc.HazardLevel == nil
}

// TierClass selects which hazard-attribute band a query targets. It mirrors
// the priority tiers without importing them: the registry filters on raw
// attributes and the caller re-derives the tier as the source of truth.
type TierClass int

const (
	ClassCritical TierClass = iota
	ClassHigh
	ClassMedium
	ClassLow
)

// Query selects ACTIVE, checkable records in one hazard band that are due for
// a check.
//
// CheckedBefore is the staleness cutoff: matched records have
// LastCheckedAt <= CheckedBefore or no LastCheckedAt at all.
// Results are ordered oldest-checked-first with never-checked records first.
// Limit <= 0 means unlimited.
type Query struct {
	Class         TierClass
	Focus         HazardFocus
	CheckedBefore time.Time
	Limit         int
}

// Registry is the boundary to the chemical record store.
//
// SelectDue failures are structural (fatal to a run); MarkChecked,
// ApplyRevision, and Reclassify failures are per-record and recovered locally
// by callers.
type Registry interface {
	SelectDue(ctx context.Context, q Query) ([]Record, error)
	MarkChecked(ctx context.Context, recordID string, at time.Time) error
	ApplyRevision(ctx context.Context, recordID string, revisionDate time.Time, downloadRef string) error
	Reclassify(ctx context.Context, recordID string, rc Reclassification) error
}
