package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/digest"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// HTTPSink delivers tenant digests to the notification service over HTTP.
type HTTPSink struct {
	base string
	http *http.Client
	log  logx.Logger
}

var _ digest.Sink = (*HTTPSink)(nil)

// NewHTTPSink builds a sink posting to {base}/v1/tenants/{id}/digests.
func NewHTTPSink(baseURL string, timeout time.Duration, log logx.Logger) (*HTTPSink, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("notify: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("notify: invalid base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSink{
		base: base,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

func (s *HTTPSink) Send(ctx context.Context, d digest.TenantDigest) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("notify: encode digest: %w", err)
	}
	u := fmt.Sprintf("%s/v1/tenants/%s/digests", s.base, url.PathEscape(d.TenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post digest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notify: tenant %s: status %s: %s", d.TenantID, resp.Status, strings.TrimSpace(string(snippet)))
	}
	s.log.Debug("digest delivered",
		logx.String("tenant", d.TenantID),
		logx.Int("items", len(d.Items)))
	return nil
}
