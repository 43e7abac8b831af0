// Package testutil holds helpers shared by package tests.
package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"attest/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	AlreadyUsed int32
	Conflicts   int32
	NotFounds   int32
	Errors      int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.AlreadyUsed + r.Conflicts + r.NotFounds + r.Errors
}

// RunConcurrent starts all goroutines behind a barrier so they race for real,
// then buckets their errors by sentinel.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                       sync.WaitGroup
		successes, used, conflicts, missing, errs atomic.Int32
	)
	start := make(chan struct{})
	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				used.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				missing.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		AlreadyUsed: used.Load(),
		Conflicts:   conflicts.Load(),
		NotFounds:   missing.Load(),
		Errors:      errs.Load(),
	}
}
