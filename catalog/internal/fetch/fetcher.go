// Package fetch implements HTTP page retrieval for the catalog crawler.
//
// Two retrieval modes: Get follows redirects like a browser, GetNoRedirect
// stops at the first 3xx so callers can inspect where the shop wanted to
// send them. Gzip-compressed bodies (sitemap .xml.gz files) are
// decompressed transparently.
package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result contains the outcome of a fetch.
type Result struct {
	Body       []byte
	StatusCode int
	FinalURL   string // request URL after any followed redirects
	Location   string // redirect target when redirects were not followed
}

// Redirected reports whether a no-follow fetch hit a redirect.
func (r *Result) Redirected() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // HTTP timeout. Default: 30s.
	MaxBytes int64         // Max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// OnFetch, when set, observes every completed request (after
	// redirect handling): final URL, status code, body size.
	OnFetch func(url string, statusCode, bytes int)
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "mb-parts-catalog/1.0"
	}
}

// Fetcher performs HTTP requests against the shop.
type Fetcher struct {
	client   *http.Client
	noFollow *http.Client
	config   Config
}

// New creates a Fetcher. The redirect-following client caps the chain
// at 5 hops.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		noFollow: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: cfg,
	}
}

// Get retrieves a URL, following redirects.
func (f *Fetcher) Get(ctx context.Context, url string) (*Result, error) {
	return f.do(ctx, f.client, url)
}

// GetNoRedirect retrieves a URL without following redirects. A 3xx
// response is not an error; the Result carries the Location target.
func (f *Fetcher) GetNoRedirect(ctx context.Context, url string) (*Result, error) {
	return f.do(ctx, f.noFollow, url)
}

func (f *Fetcher) do(ctx context.Context, client *http.Client, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Location:   resp.Header.Get("Location"),
	}
	observe := func() {
		if f.config.OnFetch != nil {
			f.config.OnFetch(res.FinalURL, res.StatusCode, len(res.Body))
		}
	}

	if res.Redirected() {
		observe()
		return res, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observe()
		return res, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	res.Body, err = maybeGunzip(body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("gunzip body: %w", err)
	}
	observe()
	return res, nil
}

// maybeGunzip decompresses bodies served as raw gzip (compressed
// sitemaps); anything without the gzip magic passes through untouched.
func maybeGunzip(body []byte, maxBytes int64) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxBytes))
}
