// Package parallel splits index ranges across CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides items into contiguous [start, end) ranges, one per
// worker, and runs fn on each range concurrently. maxWorkers <= 0 means
// runtime.NumCPU(). fn must only write to state owned by its range.
func Parallelize(items, maxWorkers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := maxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items is at or below
// threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items, threshold, maxWorkers int, fn func(start, end int)) {
	if items <= threshold || maxWorkers == 1 {
		fn(0, items)
		return
	}
	Parallelize(items, maxWorkers, fn)
}
