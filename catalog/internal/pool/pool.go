// Package pool runs batches of items with bounded concurrency.
//
// Items are grouped into fixed-size chunks; each chunk's items run
// concurrently and the next chunk starts only after every item in the
// previous chunk has settled. This keeps at most workers fetches in
// flight and preserves rough batch ordering against the remote site.
package pool

import "sync"

// DefaultWorkers is the in-flight fetch bound used across call sites.
const DefaultWorkers = 6

// Run invokes fn for indices 0..n-1 in chunks of workers concurrent
// calls. fn must handle its own errors; Run never aborts early.
func Run(n, workers int, fn func(i int)) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	for start := 0; start < n; start += workers {
		end := start + workers
		if end > n {
			end = n
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fn(i)
			}(i)
		}
		wg.Wait()
	}
}
