package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// Config holds the upstream freshness service settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	RatePerSec float64
}

// Client queries the supplier freshness service for the latest published
// revision of a safety data sheet.
//
// Contract: successful lookups are cached per (supplier, product) pair for
// the configured TTL, so repeated checks of the same sheet within a run hit
// the network at most once. Failures are never cached; a failed pair is
// retried on the next request. The rate limiter applies to network calls
// only, cache hits bypass it.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	cache   *ttlCache
	limiter *rate.Limiter
	log     logx.Logger

	externalCalls atomic.Uint64
	cacheHits     atomic.Uint64
}

type lookupPayload struct {
	RevisionDate string          `json:"revision_date"`
	DownloadRef  string          `json:"download_ref"`
	Class        *Classification `json:"classification,omitempty"`
}

// New builds a client. BaseURL must be set; the remaining fields fall back
// to defaults (10s timeout, 24h cache TTL, unlimited rate when RatePerSec
// is zero or negative).
func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("oracle: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("oracle: invalid base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		cache:   newTTLCache(cfg.CacheTTL),
		limiter: rate.NewLimiter(limit, burstFor(limit)),
		log:     log,
	}, nil
}

func burstFor(limit rate.Limit) int {
	if limit == rate.Inf {
		return 1
	}
	b := int(limit)
	if b < 1 {
		b = 1
	}
	return b
}

// ExternalCalls reports how many lookups reached the network.
func (c *Client) ExternalCalls() uint64 { return c.externalCalls.Load() }

// CacheHits reports how many lookups were served from the cache.
func (c *Client) CacheHits() uint64 { return c.cacheHits.Load() }

// Check resolves the latest known revision for the given supplier/product
// pair and compares it against knownDate. The returned Result always carries
// the identifying fields; on failure Err is set and IsNewer is false.
func (c *Client) Check(ctx context.Context, supplier, productID string, knownDate time.Time) Result {
	res := Result{Supplier: supplier, ProductID: productID}
	if strings.TrimSpace(supplier) == "" || strings.TrimSpace(productID) == "" {
		res.Err = ErrBadPayload
		res.ErrDetail = "empty supplier or product id"
		return res
	}

	now := time.Now()
	key := cacheKey(supplier, productID)
	if l, ok := c.cache.get(key, now); ok {
		c.cacheHits.Add(1)
		fill(&res, l, knownDate)
		return res
	}

	l, kind, detail := c.fetch(ctx, supplier, productID)
	if kind != ErrNone {
		res.Err = kind
		res.ErrDetail = detail
		return res
	}
	c.cache.put(key, l, now)
	fill(&res, l, knownDate)
	return res
}

func fill(res *Result, l Lookup, knownDate time.Time) {
	res.RevisionDate = l.RevisionDate
	res.DownloadRef = l.DownloadRef
	res.Classification = l.Classification
	if knownDate.IsZero() {
		res.IsNewer = !l.RevisionDate.IsZero()
	} else {
		res.IsNewer = l.RevisionDate.After(knownDate)
	}
}

func cacheKey(supplier, productID string) string {
	return supplier + "\x00" + productID
}

func (c *Client) fetch(ctx context.Context, supplier, productID string) (Lookup, ErrKind, string) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Lookup{}, ErrTimeout, "rate limiter: " + err.Error()
	}
	c.externalCalls.Add(1)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/suppliers/%s/products/%s/sds",
		c.base, url.PathEscape(supplier), url.PathEscape(productID))
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, u, nil)
	if err != nil {
		return Lookup{}, ErrInternal, err.Error()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return Lookup{}, ErrTimeout, err.Error()
		}
		return Lookup{}, ErrUnavailable, err.Error()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return Lookup{}, ErrUnavailable, "upstream status " + resp.Status
	default:
		return Lookup{}, ErrBadPayload, "unexpected status " + resp.Status
	}

	var payload lookupPayload
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&payload); err != nil {
		return Lookup{}, ErrBadPayload, "decode: " + err.Error()
	}
	rev, err := time.Parse("2006-01-02", strings.TrimSpace(payload.RevisionDate))
	if err != nil {
		return Lookup{}, ErrBadPayload, "revision_date: " + err.Error()
	}
	return Lookup{
		RevisionDate:   rev,
		DownloadRef:    strings.TrimSpace(payload.DownloadRef),
		Classification: payload.Class,
	}, ErrNone, ""
}
