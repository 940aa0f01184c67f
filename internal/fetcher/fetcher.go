// Package fetcher wraps net/http with the header rotation and randomized
// delay every source workflow needs to avoid throttling (§5), the Go
// equivalent of the original DataRequestClient wrapper around `requests`.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Fetcher performs GET requests with optional user-agent rotation and a
// random pre-request delay. One Fetcher is shared by all workflows of a
// dispatcher worker pool (§5 "the Fetcher is safe for concurrent use").
type Fetcher struct {
	httpClient *http.Client
	userAgents []string
	minDelay   time.Duration
	maxDelay   time.Duration
	rngMu      sync.Mutex
	rng        *rand.Rand
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgents supplies the pool of User-Agent header values rotated
// across requests. An empty pool disables rotation.
func WithUserAgents(agents []string) Option {
	return func(f *Fetcher) { f.userAgents = agents }
}

// WithRandomDelay sets the half-open [min, max) range a request sleeps
// before firing, mirroring the original client's random backoff.
func WithRandomDelay(minDelay, maxDelay time.Duration) Option {
	return func(f *Fetcher) {
		f.minDelay = minDelay
		f.maxDelay = maxDelay
	}
}

// New creates a Fetcher with the given request timeout and options.
func New(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	f := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches url, applying the configured delay and header rotation, and
// returns the response body. The caller is responsible for any
// source-specific retry policy (§7 treats fetch failures as retryable via
// the bus's redelivery, not via an internal retry loop here).
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, int, error) {
	f.delay()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if agent := f.randomUserAgent(); agent != "" {
		req.Header.Set("User-Agent", agent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed for %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body for %s: %w", url, err)
	}
	return body, resp.StatusCode, nil
}

// Download fetches url and returns the raw response and status, leaving the
// body open for the caller to stream -- used by download-kind workflows
// that write directly to a sink instead of buffering in memory.
func (f *Fetcher) Download(ctx context.Context, url string) (*http.Response, error) {
	f.delay()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if agent := f.randomUserAgent(); agent != "" {
		req.Header.Set("User-Agent", agent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed for %s: %w", url, err)
	}
	return resp, nil
}

func (f *Fetcher) delay() {
	if f.maxDelay <= 0 || f.maxDelay < f.minDelay {
		return
	}
	span := f.maxDelay - f.minDelay
	wait := f.minDelay
	if span > 0 {
		f.rngMu.Lock()
		wait += time.Duration(f.rng.Int63n(int64(span)))
		f.rngMu.Unlock()
	}
	time.Sleep(wait)
}

func (f *Fetcher) randomUserAgent() string {
	if len(f.userAgents) == 0 {
		return ""
	}
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return f.userAgents[f.rng.Intn(len(f.userAgents))]
}
