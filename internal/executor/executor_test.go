package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/eventbus"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/oracle"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

type fakeChecker struct {
	mu      sync.Mutex
	delay   time.Duration
	failFor map[string]oracle.ErrKind
	panicOn string

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (f *fakeChecker) Check(_ context.Context, supplier, productID string, _ time.Time) oracle.Result {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if productID == f.panicOn {
		panic("checker exploded")
	}
	f.mu.Lock()
	kind := f.failFor[productID]
	f.mu.Unlock()
	res := oracle.Result{Supplier: supplier, ProductID: productID}
	if kind != oracle.ErrNone {
		res.Err = kind
		res.ErrDetail = "forced"
		return res
	}
	res.IsNewer = true
	res.RevisionDate = time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	return res
}

func candidates(n int) []registry.Record {
	out := make([]registry.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, registry.Record{
			ID:        fmt.Sprintf("rec-%03d", i),
			TenantID:  "t1",
			IsCMR:     true,
			Supplier:  "acme",
			ProductID: fmt.Sprintf("p-%03d", i),
		})
	}
	return out
}

func seedMem(t *testing.T, recs []registry.Record) *registry.Mem {
	t.Helper()
	mem := registry.NewMem()
	for _, rec := range recs {
		if err := mem.Upsert(rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return mem
}

func TestExecuteAllCheckedAndMarked(t *testing.T) {
	t.Parallel()
	recs := candidates(20)
	mem := seedMem(t, recs)
	chk := &fakeChecker{failFor: map[string]oracle.ErrKind{"p-007": oracle.ErrUnavailable}}

	now := time.Now()
	exec := New(chk, mem, nil, 4, logx.Nop())
	out := exec.Execute(context.Background(), recs, now, now.Add(time.Minute))

	if out.Skipped != 0 {
		t.Fatalf("Skipped = %d, want 0", out.Skipped)
	}
	if len(out.Results) != len(recs) {
		t.Fatalf("got %d results, want %d", len(out.Results), len(recs))
	}

	failures := 0
	for _, res := range out.Results {
		if res.RecordID == "" || res.TenantID == "" {
			t.Fatalf("result missing identity: %+v", res)
		}
		if res.Failed() {
			failures++
			if res.ProductID != "p-007" {
				t.Fatalf("unexpected failure for %s", res.ProductID)
			}
		}
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}

	// Every record is marked checked, failed one included.
	for _, rec := range recs {
		got, ok := mem.Get(rec.ID)
		if !ok || !got.LastCheckedAt.Equal(now) {
			t.Fatalf("record %s not marked checked: %+v", rec.ID, got)
		}
	}
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	t.Parallel()
	recs := candidates(30)
	mem := seedMem(t, recs)
	chk := &fakeChecker{delay: 5 * time.Millisecond}

	now := time.Now()
	exec := New(chk, mem, nil, 5, logx.Nop())
	out := exec.Execute(context.Background(), recs, now, now.Add(time.Minute))

	if len(out.Results) != len(recs) {
		t.Fatalf("got %d results, want %d", len(out.Results), len(recs))
	}
	if max := chk.maxInFlight.Load(); max > 5 {
		t.Fatalf("observed %d concurrent checks, limit 5", max)
	}
}

func TestExecutePanicBecomesInternalError(t *testing.T) {
	t.Parallel()
	recs := candidates(5)
	mem := seedMem(t, recs)
	chk := &fakeChecker{panicOn: "p-002"}

	now := time.Now()
	exec := New(chk, mem, nil, 2, logx.Nop())
	out := exec.Execute(context.Background(), recs, now, now.Add(time.Minute))

	if len(out.Results) != len(recs) {
		t.Fatalf("got %d results, want %d", len(out.Results), len(recs))
	}
	found := false
	for _, res := range out.Results {
		if res.ProductID == "p-002" {
			found = true
			if res.Err != oracle.ErrInternal {
				t.Fatalf("panic mapped to %q, want %q", res.Err, oracle.ErrInternal)
			}
		}
	}
	if !found {
		t.Fatal("panicking record missing from results")
	}
	if got, _ := mem.Get("rec-002"); !got.LastCheckedAt.Equal(now) {
		t.Fatal("panicking record not marked checked")
	}
}

func TestExecuteDeadlineSkipsRemainder(t *testing.T) {
	t.Parallel()
	recs := candidates(10)
	mem := seedMem(t, recs)
	chk := &fakeChecker{}

	now := time.Now()
	exec := New(chk, mem, nil, 2, logx.Nop())
	out := exec.Execute(context.Background(), recs, now, now.Add(-time.Second))

	if out.Skipped != len(recs) {
		t.Fatalf("Skipped = %d, want %d", out.Skipped, len(recs))
	}
	if len(out.Results) != 0 {
		t.Fatalf("expected no results past deadline, got %d", len(out.Results))
	}
	for _, rec := range recs {
		if got, _ := mem.Get(rec.ID); !got.LastCheckedAt.IsZero() {
			t.Fatalf("skipped record %s was marked checked", rec.ID)
		}
	}
}

func TestExecutePublishesCheckFailures(t *testing.T) {
	t.Parallel()
	recs := candidates(3)
	mem := seedMem(t, recs)
	chk := &fakeChecker{failFor: map[string]oracle.ErrKind{"p-001": oracle.ErrTimeout}}

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	now := time.Now()
	exec := New(chk, mem, bus, 2, logx.Nop())
	exec.Execute(context.Background(), recs, now, now.Add(time.Minute))

	select {
	case ev := <-ch:
		if ev.Type != eventbus.TypeCheckFailed {
			t.Fatalf("event type = %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no check.failed event published")
	}
}
