// Package iopool bounds the engine's I/O helper concurrency. Today its only
// in-tree user is the file-set registry's bucket-open fanout; command
// execution itself stays on the single dispatcher thread.
package iopool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is a fixed-size worker pool. Tasks beyond the worker count queue on
// the semaphore.
type Pool struct {
	workers int
	sem     *semaphore.Weighted
}

func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Do runs the tasks with at most the pool's worker count in flight and
// returns the first error. Remaining tasks are not started once a task
// fails.
func (p *Pool) Do(ctx context.Context, tasks ...func() error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		task := task
		g.Go(func() error {
			defer p.sem.Release(1)
			return task()
		})
	}
	return g.Wait()
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}
