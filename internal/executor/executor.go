package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/eventbus"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/oracle"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// DefaultWorkers bounds concurrent freshness checks when no explicit
// worker count is configured.
const DefaultWorkers = 50

// Checker resolves the freshness of one sheet. Satisfied by *oracle.Client;
// tests substitute fakes.
type Checker interface {
	Check(ctx context.Context, supplier, productID string, knownDate time.Time) oracle.Result
}

// Outcome summarizes one batch execution.
type Outcome struct {
	// Results holds one entry per candidate that was actually checked,
	// failures included.
	Results []oracle.Result
	// Skipped counts candidates never handed to a worker because the run
	// deadline passed first.
	Skipped int
}

// Executor fans a candidate batch out over a bounded worker pool.
//
// Contract: every candidate that a worker picks up before the deadline is
// checked and marked as checked in the registry regardless of the check's
// outcome, so a persistently failing sheet cannot wedge the rotation.
// Candidates remaining in the queue once the deadline passes are dropped
// and reported in Outcome.Skipped; in-flight checks are left to finish.
type Executor struct {
	checker Checker
	reg     registry.Registry
	bus     eventbus.Bus
	workers int
	log     logx.Logger
}

// New builds an executor. A non-positive worker count falls back to
// DefaultWorkers. bus may be nil.
func New(checker Checker, reg registry.Registry, bus eventbus.Bus, workers int, log logx.Logger) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{checker: checker, reg: reg, bus: bus, workers: workers, log: log}
}

// Execute runs the batch. now is used as the checked-at timestamp for
// registry bookkeeping; deadline bounds dispatch of new checks.
func (e *Executor) Execute(ctx context.Context, candidates []registry.Record, now, deadline time.Time) Outcome {
	out := Outcome{}
	if len(candidates) == 0 {
		return out
	}

	jobs := make(chan registry.Record)
	var (
		mu      sync.Mutex
		results = make([]oracle.Result, 0, len(candidates))
	)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				res := e.checkOne(ctx, rec)
				e.markChecked(ctx, rec, now)
				if res.Failed() {
					e.log.Warn("freshness check failed",
						logx.String("record", rec.ID),
						logx.String("supplier", rec.Supplier),
						logx.String("kind", string(res.Err)),
						logx.String("detail", res.ErrDetail))
					e.publishFailure(res)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	skipped := 0
dispatch:
	for i, rec := range candidates {
		if !time.Now().Before(deadline) {
			skipped = len(candidates) - i
			break dispatch
		}
		select {
		case jobs <- rec:
		case <-ctx.Done():
			skipped = len(candidates) - i
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	out.Results = results
	out.Skipped = skipped
	return out
}

func (e *Executor) checkOne(ctx context.Context, rec registry.Record) (res oracle.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic during freshness check",
				logx.String("record", rec.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			res = oracle.Result{
				RecordID:  rec.ID,
				TenantID:  rec.TenantID,
				Supplier:  rec.Supplier,
				ProductID: rec.ProductID,
				Err:       oracle.ErrInternal,
				ErrDetail: fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	res = e.checker.Check(ctx, rec.Supplier, rec.ProductID, rec.SDSDate)
	res.RecordID = rec.ID
	res.TenantID = rec.TenantID
	return res
}

func (e *Executor) markChecked(ctx context.Context, rec registry.Record, now time.Time) {
	if err := e.reg.MarkChecked(ctx, rec.ID, now); err != nil {
		e.log.Error("mark checked failed",
			logx.String("record", rec.ID),
			logx.Err(err))
	}
}

func (e *Executor) publishFailure(res oracle.Result) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type: eventbus.TypeCheckFailed,
		Data: map[string]any{
			"record_id": res.RecordID,
			"tenant_id": res.TenantID,
			"kind":      string(res.Err),
		},
	})
}
