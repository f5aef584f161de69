// Package worker runs the blocking recognize+translate pipeline off the
// event-loop goroutine.
package worker

import (
	"context"
	"sync"
)

// Outcome is what one pipeline run produced. Text is the rendered display
// text ("" when the cycle produced nothing new); Fingerprint identifies the
// recognition for change detection ("" when recognition was empty).
type Outcome struct {
	Text        string
	Fingerprint string
}

// Task is one pipeline run over a captured frame.
type Task func(ctx context.Context) (Outcome, error)

// ResultCallback is invoked on completion from a worker goroutine. The event
// loop passes a closure that posts back into the loop safely.
type ResultCallback func(out Outcome, err error)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict
// back-pressure): while a job is queued, further submissions are rejected
// rather than buffered.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
}

type job struct {
	ctx  context.Context
	task Task
	cb   ResultCallback
}

// New creates a pool of size workers (minimum 1) sharing a 1-slot queue.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan job, 1)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				out, err := runWithContext(j.ctx, j.task)
				j.cb(out, err)
			}
		}()
	}
	return p
}

// Submit enqueues a task if the single-slot queue is free. Returns false if
// dropped.
func (p *Pool) Submit(ctx context.Context, task Task, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, task: task, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// runWithContext honors cancellation even when the task is stuck in a
// blocking call (the OCR engine takes no context): the underlying work may
// continue in the background, but the caller gets ctx.Err() immediately.
func runWithContext(ctx context.Context, task Task) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	resCh := make(chan struct {
		out Outcome
		err error
	}, 1)
	go func() {
		out, err := task(ctx)
		resCh <- struct {
			out Outcome
			err error
		}{out, err}
	}()

	select {
	case r := <-resCh:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
