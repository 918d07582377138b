package digest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/oracle"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

var genAt = time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)

func seedRecords(t *testing.T, recs ...registry.Record) *registry.Mem {
	t.Helper()
	mem := registry.NewMem()
	for _, rec := range recs {
		if err := mem.Upsert(rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return mem
}

func TestAggregateMinimality(t *testing.T) {
	t.Parallel()
	mem := seedRecords(t,
		registry.Record{ID: "a", TenantID: "t1", IsCMR: true, Supplier: "s", ProductID: "p1"},
		registry.Record{ID: "b", TenantID: "t1", IsCMR: true, Supplier: "s", ProductID: "p2"},
		registry.Record{ID: "c", TenantID: "t1", IsCMR: true, Supplier: "s", ProductID: "p3"},
	)
	candidates := []registry.Record{
		{ID: "a", TenantID: "t1", Supplier: "s", ProductID: "p1"},
		{ID: "b", TenantID: "t1", Supplier: "s", ProductID: "p2"},
		{ID: "c", TenantID: "t1", Supplier: "s", ProductID: "p3"},
	}
	results := []oracle.Result{
		{RecordID: "a", TenantID: "t1", IsNewer: true,
			RevisionDate: genAt.AddDate(0, 0, -1), DownloadRef: "sds/a.pdf"},
		{RecordID: "b", TenantID: "t1", IsNewer: false},
		{RecordID: "c", TenantID: "t1", Err: oracle.ErrTimeout},
	}

	agg := NewAggregator(mem, logx.Nop())
	digests := agg.Aggregate(context.Background(), candidates, results, genAt)

	if len(digests) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(digests))
	}
	d := digests[0]
	if d.TenantID != "t1" || len(d.Items) != 1 || d.Items[0].RecordID != "a" {
		t.Fatalf("unexpected digest: %+v", d)
	}
	if !d.GeneratedAt.Equal(genAt) {
		t.Fatalf("GeneratedAt = %v", d.GeneratedAt)
	}
}

func TestAggregateGroupsPerTenantDeterministically(t *testing.T) {
	t.Parallel()
	var candidates []registry.Record
	var results []oracle.Result
	mem := registry.NewMem()
	for _, pair := range []struct{ id, tenant string }{
		{"r1", "t-zeta"}, {"r2", "t-alpha"}, {"r3", "t-zeta"}, {"r4", "t-mid"},
	} {
		rec := registry.Record{ID: pair.id, TenantID: pair.tenant, IsCMR: true,
			Supplier: "s", ProductID: pair.id}
		if err := mem.Upsert(rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		candidates = append(candidates, rec)
		results = append(results, oracle.Result{
			RecordID: pair.id, TenantID: pair.tenant, IsNewer: true,
			RevisionDate: genAt.AddDate(0, 0, -3),
		})
	}

	agg := NewAggregator(mem, logx.Nop())
	digests := agg.Aggregate(context.Background(), candidates, results, genAt)

	if len(digests) != 3 {
		t.Fatalf("expected 3 digests, got %d", len(digests))
	}
	tenants := []string{digests[0].TenantID, digests[1].TenantID, digests[2].TenantID}
	if !sort.StringsAreSorted(tenants) {
		t.Fatalf("tenants not sorted: %v", tenants)
	}
	for _, d := range digests {
		if d.TenantID == "t-zeta" && len(d.Items) != 2 {
			t.Fatalf("t-zeta digest has %d items, want 2", len(d.Items))
		}
	}
}

func TestAggregateAppliesRevision(t *testing.T) {
	t.Parallel()
	old := genAt.AddDate(-1, 0, 0)
	mem := seedRecords(t, registry.Record{
		ID: "a", TenantID: "t1", IsCMR: true, Supplier: "s", ProductID: "p1", SDSDate: old,
	})
	rec, _ := mem.Get("a")
	rev := genAt.AddDate(0, 0, -2)
	results := []oracle.Result{{
		RecordID: "a", TenantID: "t1", IsNewer: true,
		RevisionDate: rev, DownloadRef: "sds/a/v3.pdf",
	}}

	agg := NewAggregator(mem, logx.Nop())
	agg.Aggregate(context.Background(), []registry.Record{rec}, results, genAt)

	got, _ := mem.Get("a")
	if !got.SDSDate.Equal(rev) || got.DownloadRef != "sds/a/v3.pdf" {
		t.Fatalf("revision not applied: %+v", got)
	}
}

func TestAggregateReclassifiesOnExplicitReport(t *testing.T) {
	t.Parallel()
	mem := seedRecords(t, registry.Record{
		ID: "a", TenantID: "t1", HazardLevel: 1, Supplier: "s", ProductID: "p1",
	})
	rec, _ := mem.Get("a")
	results := []oracle.Result{{
		RecordID: "a", TenantID: "t1", IsNewer: true,
		RevisionDate:   genAt.AddDate(0, 0, -1),
		Classification: &oracle.Classification{IsCMR: true, HazardLevel: 1},
	}}

	agg := NewAggregator(mem, logx.Nop())
	digests := agg.Aggregate(context.Background(), []registry.Record{rec}, results, genAt)

	got, _ := mem.Get("a")
	if !got.IsCMR {
		t.Fatal("explicit CMR report not applied")
	}
	if len(digests) != 1 || !digests[0].Items[0].Reclassified {
		t.Fatalf("digest item not flagged reclassified: %+v", digests)
	}

	// No classification in the response leaves the stored flags alone.
	rec2 := registry.Record{ID: "b", TenantID: "t1", HazardLevel: 4, Supplier: "s", ProductID: "p2"}
	if err := mem.Upsert(rec2); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	agg.Aggregate(context.Background(), []registry.Record{rec2}, []oracle.Result{{
		RecordID: "b", TenantID: "t1", IsNewer: true, RevisionDate: genAt.AddDate(0, 0, -1),
	}}, genAt)
	if got, _ := mem.Get("b"); got.HazardLevel != 4 || got.IsCMR {
		t.Fatalf("silent response mutated classification: %+v", got)
	}
}

type fakeSink struct {
	mu     sync.Mutex
	sent   []string
	failOn string
}

func (f *fakeSink) Send(_ context.Context, d TenantDigest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.TenantID == f.failOn {
		return errors.New("endpoint down")
	}
	f.sent = append(f.sent, d.TenantID)
	return nil
}

func TestDispatchContinuesPastFailures(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{failOn: "t2"}
	disp := NewDispatcher(sink, logx.Nop())

	digests := []TenantDigest{
		{TenantID: "t1"}, {TenantID: "t2"}, {TenantID: "t3"},
	}
	sent := disp.Dispatch(context.Background(), digests)
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(sink.sent) != 2 || sink.sent[0] != "t1" || sink.sent[1] != "t3" {
		t.Fatalf("delivered tenants: %v", sink.sent)
	}
}
