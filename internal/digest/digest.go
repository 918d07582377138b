package digest

import (
	"context"
	"sort"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/oracle"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/priority"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// Item is one stale sheet inside a tenant digest.
type Item struct {
	RecordID     string    `json:"record_id"`
	Supplier     string    `json:"supplier"`
	ProductID    string    `json:"product_id"`
	Tier         string    `json:"tier"`
	KnownDate    time.Time `json:"known_date"`
	RevisionDate time.Time `json:"revision_date"`
	DownloadRef  string    `json:"download_ref,omitempty"`
	Reclassified bool      `json:"reclassified,omitempty"`
}

// TenantDigest groups every newer-revision finding for one tenant in one run.
type TenantDigest struct {
	TenantID    string    `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Items       []Item    `json:"items"`
}

// Sink delivers a finished digest to a tenant. Implemented by the HTTP
// notifier; tests substitute fakes.
type Sink interface {
	Send(ctx context.Context, d TenantDigest) error
}

// Aggregator turns raw check results into per-tenant digests and writes the
// accepted revisions back into the registry.
//
// Contract: only results with a strictly newer revision produce items;
// failed or up-to-date checks generate no digest traffic. At most one digest
// per tenant per run, tenants in deterministic order.
type Aggregator struct {
	reg registry.Registry
	log logx.Logger
}

func NewAggregator(reg registry.Registry, log logx.Logger) *Aggregator {
	return &Aggregator{reg: reg, log: log}
}

// Aggregate builds the digests for one run. candidates supply the record
// metadata the transient results do not carry.
func (a *Aggregator) Aggregate(ctx context.Context, candidates []registry.Record, results []oracle.Result, now time.Time) []TenantDigest {
	byID := make(map[string]registry.Record, len(candidates))
	for _, rec := range candidates {
		byID[rec.ID] = rec
	}

	grouped := map[string][]Item{}
	for _, res := range results {
		if res.Failed() || !res.IsNewer {
			continue
		}
		rec, ok := byID[res.RecordID]
		if !ok {
			continue
		}
		item := Item{
			RecordID:     rec.ID,
			Supplier:     rec.Supplier,
			ProductID:    rec.ProductID,
			Tier:         priority.Classify(rec).String(),
			KnownDate:    rec.SDSDate,
			RevisionDate: res.RevisionDate,
			DownloadRef:  res.DownloadRef,
		}
		if a.applyRevision(ctx, rec, res) {
			item.Reclassified = a.applyReclassification(ctx, rec, res)
		}
		grouped[rec.TenantID] = append(grouped[rec.TenantID], item)
	}

	tenants := make([]string, 0, len(grouped))
	for t := range grouped {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	digests := make([]TenantDigest, 0, len(tenants))
	for _, t := range tenants {
		items := grouped[t]
		sort.Slice(items, func(i, j int) bool { return items[i].RecordID < items[j].RecordID })
		digests = append(digests, TenantDigest{TenantID: t, GeneratedAt: now, Items: items})
	}
	return digests
}

func (a *Aggregator) applyRevision(ctx context.Context, rec registry.Record, res oracle.Result) bool {
	if err := a.reg.ApplyRevision(ctx, rec.ID, res.RevisionDate, res.DownloadRef); err != nil {
		a.log.Error("apply revision failed",
			logx.String("record", rec.ID),
			logx.Err(err))
		return false
	}
	return true
}

// applyReclassification updates hazard flags when the oracle explicitly
// reported a classification that differs from the stored one. Absence of a
// classification in the response means no statement, never a downgrade.
func (a *Aggregator) applyReclassification(ctx context.Context, rec registry.Record, res oracle.Result) bool {
	c := res.Classification
	if c == nil {
		return false
	}
	var diff registry.Reclassification
	if c.IsCMR != rec.IsCMR {
		v := c.IsCMR
		diff.IsCMR = &v
	}
	if c.IsSVHC != rec.IsSVHC {
		v := c.IsSVHC
		diff.IsSVHC = &v
	}
	if c.HazardLevel != rec.HazardLevel {
		v := c.HazardLevel
		diff.HazardLevel = &v
	}
	if diff.Empty() {
		return false
	}
	if err := a.reg.Reclassify(ctx, rec.ID, diff); err != nil {
		a.log.Error("reclassify failed",
			logx.String("record", rec.ID),
			logx.Err(err))
		return false
	}
	return true
}

// Dispatcher pushes digests through a sink, one tenant at a time.
type Dispatcher struct {
	sink Sink
	log  logx.Logger
}

func NewDispatcher(sink Sink, log logx.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, log: log}
}

// Dispatch sends every digest and returns the number delivered. A failed
// send is logged and skipped so one broken tenant endpoint cannot block
// the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, digests []TenantDigest) int {
	if d.sink == nil {
		return 0
	}
	sent := 0
	for _, dg := range digests {
		if err := d.sink.Send(ctx, dg); err != nil {
			d.log.Warn("digest delivery failed",
				logx.String("tenant", dg.TenantID),
				logx.Int("items", len(dg.Items)),
				logx.Err(err))
			continue
		}
		sent++
	}
	return sent
}
