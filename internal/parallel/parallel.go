// Package parallel fans independent work units out over a bounded set of
// goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Upper bound on worker goroutines.
	MinUnits   int  // Below this many units, run sequentially.
}

// DefaultConfig returns defaults based on CPU count.
//
// Attention units (one query block each) are coarse, so parallelism is worth
// it from two units on.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinUnits:   2,
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{}
}

// For executes f(i) for every i in [0, n).
//
// Units are handed out one at a time from a shared counter, so a slow unit
// does not hold back a statically assigned range. f must not share mutable
// state between different i. For returns once every call has finished.
func For(n int, f func(i int), cfg Config) {
	workers := min(cfg.NumWorkers, n)
	if !cfg.Enabled || n < max(cfg.MinUnits, 2) || workers < 2 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var (
		next atomic.Int64
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= n {
					return
				}
				f(i)
			}
		}()
	}
	wg.Wait()
}
