// Package fetch retrieves raw HTML or feed bytes for source URLs with
// bounded time, size, and redirect behavior.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single fetch end to end.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of a response body is read before
	// truncation kicks in.
	DefaultMaxBodyBytes int64 = 2 * 1024 * 1024
	// DefaultMaxRedirects bounds redirect chains.
	DefaultMaxRedirects = 5
	// DefaultUserAgent identifies the worker to origin servers.
	DefaultUserAgent = "curio/1.0 (+https://github.com/curio)"
)

// Declared responses larger than this multiple of the body cap are refused
// outright instead of being read and truncated.
const oversizeFactor = 4

var (
	// ErrTimeout marks fetches that exceeded their deadline.
	ErrTimeout = errors.New("fetch: timeout")
	// ErrTooLarge marks responses whose declared size is beyond reading.
	ErrTooLarge = errors.New("fetch: response too large")
)

// HTTPError reports a non-2xx status from the origin server.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Result is the outcome of a successful fetch.
type Result struct {
	Body         []byte // Response body, possibly truncated
	Status       int    // HTTP status code
	ContentType  string // Content-Type header value
	Truncated    bool   // True when Body was cut at the size cap
	NotModified  bool   // True on a 304 response to a conditional request
	ETag         string // ETag response header, for conditional revalidation
	LastModified string // Last-Modified response header
}

// Conditional carries cached validators for revalidating a previous fetch.
type Conditional struct {
	ETag         string
	LastModified string
}

// Options configures a Fetcher.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRedirects int
	UserAgent    string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Fetcher retrieves URLs. It is stateless and safe for concurrent use.
type Fetcher struct {
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(opts Options) *Fetcher {
	opts = opts.withDefaults()
	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{
		client:       client,
		maxBodyBytes: opts.MaxBodyBytes,
		userAgent:    opts.UserAgent,
	}
}

// Fetch retrieves url, honoring ctx cancellation and the configured bounds.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	return f.FetchConditional(ctx, url, Conditional{})
}

// FetchConditional retrieves url with If-None-Match/If-Modified-Since headers
// when validators are present. A 304 response yields Result.NotModified with
// an empty body.
func (f *Fetcher) FetchConditional(ctx context.Context, url string, cond Conditional) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("fetch %s: %w", url, ErrTimeout)
		}
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := &Result{
		Status:       resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	if resp.ContentLength > f.maxBodyBytes*oversizeFactor {
		return nil, fmt.Errorf("fetch %s: declared %d bytes: %w", url, resp.ContentLength, ErrTooLarge)
	}

	// Read one byte past the cap to detect truncation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("fetch %s: %w", url, ErrTimeout)
		}
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		body = body[:f.maxBodyBytes]
		result.Truncated = true
	}
	result.Body = body

	return result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
