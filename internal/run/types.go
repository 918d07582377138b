package run

import (
	"context"
	"time"
)

// Status is the lifecycle state of one scheduled execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the persisted account of one execution. ScheduledFor is the
// calendar date the execution covers, normalized to midnight UTC; it is the
// idempotency key together with a completed status.
type Record struct {
	ID           int64
	ScheduledFor time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       Status

	Selected    int
	Checked     int
	Failures    int
	Skipped     int
	DigestsSent int

	Error string
}

// Store persists execution records.
//
// HasCompleted reports whether any completed record exists for the given
// date; multiple records per date are allowed (retries after failures),
// completion of any one of them makes further triggers for that date no-ops.
type Store interface {
	Create(ctx context.Context, rec Record) (int64, error)
	Update(ctx context.Context, rec Record) error
	HasCompleted(ctx context.Context, scheduledFor time.Time) (bool, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// DateOf normalizes a trigger instant to its idempotency date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
