// Package fetcher performs rate-limited HTTP downloads and decodes feed and
// JSON payloads.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"feedwatch/internal/metrics"
)

const (
	userAgent    = "feedwatch/1.0"
	maxBodyBytes = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Error is returned for any network, status or decoding failure.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fetcher downloads documents, spacing request starts by a minimum interval.
// The interval is shared by every caller of the same Fetcher.
type Fetcher struct {
	client  HTTPClient
	limiter *rate.Limiter
	timeout time.Duration
	name    string
}

// New creates a Fetcher. An interval of zero disables rate limiting.
// The name labels the fetcher's metrics.
func New(client HTTPClient, name string, interval time.Duration) *Fetcher {
	f := &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
		name:    name,
	}
	if interval > 0 {
		f.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return f
}

// Get downloads the body at url.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &Error{URL: url, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	body, err := f.do(ctx, url)
	if err != nil {
		metrics.RecordFetch(f.name, "error")
		return nil, &Error{URL: url, Err: err}
	}
	metrics.RecordFetch(f.name, "ok")
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// GetJSON downloads url and decodes the JSON body into v.
func (f *Fetcher) GetJSON(ctx context.Context, url string, v any) error {
	body, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{URL: url, Err: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

// GetFeed downloads and parses an RSS or Atom feed.
func (f *Fetcher) GetFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	body, err := f.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("parse feed: %w", err)}
	}
	return feed, nil
}
