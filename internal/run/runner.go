package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/digest"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/eventbus"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/executor"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/oracle"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// DefaultRunDeadline bounds one execution end to end. New checks stop being
// dispatched once it passes; in-flight checks finish.
const DefaultRunDeadline = 2 * time.Hour

var (
	// ErrOverlap is returned when an execution is already in progress.
	ErrOverlap = errors.New("run already in progress")
	// ErrAlreadyCompleted is returned when the trigger date already has a
	// completed execution.
	ErrAlreadyCompleted = errors.New("run already completed for date")
)

// Selector yields the day's due candidates.
type Selector interface {
	SelectCandidates(ctx context.Context, now time.Time) ([]registry.Record, error)
}

// BatchExecutor runs the checks for a candidate batch.
type BatchExecutor interface {
	Execute(ctx context.Context, candidates []registry.Record, now, deadline time.Time) executor.Outcome
}

// Aggregator folds check results into per-tenant digests.
type Aggregator interface {
	Aggregate(ctx context.Context, candidates []registry.Record, results []oracle.Result, now time.Time) []digest.TenantDigest
}

// Dispatcher delivers digests, returning the number sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, digests []digest.TenantDigest) int
}

// Runner drives the select, check, aggregate, notify pipeline for one
// scheduled date and records the outcome.
//
// Contract: at most one execution at a time; a second trigger while one is
// in flight returns ErrOverlap. A trigger for a date that already has a
// completed record returns ErrAlreadyCompleted. Both are no-ops by design
// so missed-then-replayed cron fires stay safe.
type Runner struct {
	sel   Selector
	exec  BatchExecutor
	agg   Aggregator
	disp  Dispatcher
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	deadline time.Duration
	gate     chan struct{}
}

// NewRunner wires the pipeline. bus may be nil; a non-positive deadline
// falls back to DefaultRunDeadline.
func NewRunner(sel Selector, exec BatchExecutor, agg Aggregator, disp Dispatcher, store Store, bus eventbus.Bus, deadline time.Duration, log logx.Logger) *Runner {
	if deadline <= 0 {
		deadline = DefaultRunDeadline
	}
	gate := make(chan struct{}, 1)
	gate <- struct{}{}
	return &Runner{
		sel:      sel,
		exec:     exec,
		agg:      agg,
		disp:     disp,
		store:    store,
		bus:      bus,
		log:      log,
		deadline: deadline,
		gate:     gate,
	}
}

// RunOnce executes the pipeline for the date of at.
func (r *Runner) RunOnce(ctx context.Context, at time.Time) (Record, error) {
	select {
	case <-r.gate:
		defer func() { r.gate <- struct{}{} }()
	default:
		r.publish(eventbus.TypeRunSkipped, map[string]any{"reason": "overlap"})
		return Record{}, ErrOverlap
	}

	date := DateOf(at)
	done, err := r.store.HasCompleted(ctx, date)
	if err != nil {
		return Record{}, fmt.Errorf("run history lookup: %w", err)
	}
	if done {
		r.log.Info("run already completed, skipping",
			logx.Time("scheduled_for", date))
		r.publish(eventbus.TypeRunSkipped, map[string]any{
			"reason":        "already_completed",
			"scheduled_for": date.Format("2006-01-02"),
		})
		return Record{}, ErrAlreadyCompleted
	}

	start := time.Now()
	rec := Record{
		ScheduledFor: date,
		StartedAt:    start,
		Status:       StatusRunning,
	}
	if rec.ID, err = r.store.Create(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("create run record: %w", err)
	}

	r.log.Info("run started",
		logx.Int64("run", rec.ID),
		logx.Time("scheduled_for", date))
	r.publish(eventbus.TypeRunStarted, map[string]any{
		"run_id":        rec.ID,
		"scheduled_for": date.Format("2006-01-02"),
	})

	candidates, err := r.sel.SelectCandidates(ctx, at)
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		rec.FinishedAt = time.Now()
		if uerr := r.store.Update(ctx, rec); uerr != nil {
			r.log.Error("persist failed run", logx.Int64("run", rec.ID), logx.Err(uerr))
		}
		r.publish(eventbus.TypeRunFailed, map[string]any{
			"run_id": rec.ID,
			"error":  err.Error(),
		})
		return rec, fmt.Errorf("select candidates: %w", err)
	}
	rec.Selected = len(candidates)

	out := r.exec.Execute(ctx, candidates, at, start.Add(r.deadline))
	rec.Checked = len(out.Results)
	rec.Skipped = out.Skipped
	for _, res := range out.Results {
		if res.Failed() {
			rec.Failures++
		}
	}

	digests := r.agg.Aggregate(ctx, candidates, out.Results, at)
	rec.DigestsSent = r.disp.Dispatch(ctx, digests)

	rec.Status = StatusCompleted
	rec.FinishedAt = time.Now()
	if err := r.store.Update(ctx, rec); err != nil {
		r.log.Error("persist completed run", logx.Int64("run", rec.ID), logx.Err(err))
	}

	r.log.Info("run completed",
		logx.Int64("run", rec.ID),
		logx.Int("selected", rec.Selected),
		logx.Int("checked", rec.Checked),
		logx.Int("failures", rec.Failures),
		logx.Int("skipped", rec.Skipped),
		logx.Int("digests", rec.DigestsSent),
		logx.Duration("took", rec.FinishedAt.Sub(rec.StartedAt)))
	r.publish(eventbus.TypeRunCompleted, map[string]any{
		"run_id":   rec.ID,
		"selected": rec.Selected,
		"checked":  rec.Checked,
		"failures": rec.Failures,
		"digests":  rec.DigestsSent,
	})
	return rec, nil
}

func (r *Runner) publish(typ string, data map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
