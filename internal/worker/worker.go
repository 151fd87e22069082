package worker

import (
	"context"
	"sync"
)

// DefaultConcurrency processes one file at a time
const DefaultConcurrency = 1

// Pool manages concurrent workers
type Pool struct {
	concurrency int
}

// NewPool creates a new worker pool.
// A concurrency below one is treated as DefaultConcurrency.
func NewPool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Pool{concurrency: concurrency}
}

// Concurrency returns the number of workers
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Run calls job for every index in [0, n).
//
// After each job returns, onDone is called with the number of jobs completed
// so far. Calls to onDone are serialized, so the count it receives is strictly
// increasing even when several workers finish at once.
//
// Cancellation is checked before each job starts; a running job is never
// interrupted by the pool. Run returns ctx.Err() when jobs were left unstarted.
func (p *Pool) Run(ctx context.Context, n int, job func(ctx context.Context, i int), onDone func(completed int)) error {
	jobs := make(chan int)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	workers := p.concurrency
	if workers > n {
		workers = n
	}

	// Start workers
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}

				job(ctx, i)

				mu.Lock()
				completed++
				if onDone != nil {
					onDone(completed)
				}
				mu.Unlock()
			}
		}()
	}

	// Send jobs
	var err error
send:
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break send
		case jobs <- i:
		}
	}
	close(jobs)

	// Wait for workers to finish
	wg.Wait()

	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if completed < n {
		return ctx.Err()
	}
	return nil
}
