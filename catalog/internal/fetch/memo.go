package fetch

import (
	"context"
	"sync"
)

// Memo caches page bodies for the duration of one crawl run, so a URL
// reached through several search terms is fetched once. The cache holds
// whole results including errors; a failed URL is not retried within
// the run.
type Memo struct {
	f *Fetcher

	mu    sync.Mutex
	pages map[string]*memoEntry
}

type memoEntry struct {
	res *Result
	err error
}

// NewMemo wraps f with a run-scoped cache.
func NewMemo(f *Fetcher) *Memo {
	return &Memo{f: f, pages: make(map[string]*memoEntry)}
}

// Get returns the cached result for url, fetching on first use.
// Redirects are followed.
func (m *Memo) Get(ctx context.Context, url string) (*Result, error) {
	m.mu.Lock()
	if e, ok := m.pages[url]; ok {
		m.mu.Unlock()
		return e.res, e.err
	}
	m.mu.Unlock()

	res, err := m.f.Get(ctx, url)

	m.mu.Lock()
	m.pages[url] = &memoEntry{res: res, err: err}
	m.mu.Unlock()
	return res, err
}

// Len reports how many distinct URLs the run has touched.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}
