package oracle

import "time"

// ErrKind classifies a failed freshness lookup. Failures are data, not
// control flow: a failed check is reported in the Result and never aborts
// the batch.
type ErrKind string

const (
	ErrNone        ErrKind = ""
	ErrTimeout     ErrKind = "timeout"
	ErrUnavailable ErrKind = "unavailable"
	ErrBadPayload  ErrKind = "bad_payload"
	ErrInternal    ErrKind = "internal"
)

// Classification is the oracle's explicit hazard classification report.
// It is only present when the supplier data includes one; absence means
// "no statement", not "unchanged".
type Classification struct {
	IsCMR       bool `json:"is_cmr"`
	IsSVHC      bool `json:"is_svhc"`
	HazardLevel int  `json:"hazard_level"`
}

// Lookup is the cacheable part of an oracle response for one
// (supplier, product) pair. It carries no per-record state.
type Lookup struct {
	RevisionDate   time.Time
	DownloadRef    string
	Classification *Classification
}

// Result is the transient outcome of a single freshness check.
//
// RecordID and TenantID are filled in by the caller; the client only knows
// the supplier linkage. IsNewer is true iff the oracle's revision date is
// strictly after the caller's known date (an absent known date counts as
// always older).
type Result struct {
	RecordID string
	TenantID string

	Supplier  string
	ProductID string

	IsNewer        bool
	RevisionDate   time.Time
	DownloadRef    string
	Classification *Classification

	Err       ErrKind
	ErrDetail string
}

// Failed reports whether the check produced an error outcome.
func (r Result) Failed() bool { return r.Err != ErrNone }
