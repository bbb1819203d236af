package pool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRun_VisitsEveryIndexOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]int)
	Run(17, 4, func(i int) {
		mu.Lock()
		seen[i]++
		mu.Unlock()
	})
	if len(seen) != 17 {
		t.Fatalf("visited %d indices, want 17", len(seen))
	}
	for i, n := range seen {
		if n != 1 {
			t.Errorf("index %d visited %d times", i, n)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	Run(30, 5, func(i int) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		inFlight.Add(-1)
	})
	if p := peak.Load(); p > 5 {
		t.Errorf("peak concurrency %d exceeds worker bound 5", p)
	}
}

func TestRun_Empty(t *testing.T) {
	called := false
	Run(0, 4, func(int) { called = true })
	if called {
		t.Error("fn called for empty input")
	}
}
