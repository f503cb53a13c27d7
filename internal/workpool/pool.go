// Package workpool runs CPU-bound work (message encoding and decoding) on a
// fixed set of goroutines so callers driving network I/O are not starved.
package workpool

import (
	"context"
	goerrors "errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = goerrors.New("worker pool closed")

// Pool is a fixed-size worker pool fed by an unbounded FIFO queue.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	closed  bool
	workers int
	wg      sync.WaitGroup
}

// New starts a pool with the given number of workers (at least one).
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		tasks:   queue.New(),
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.tasks.Length() == 0 {
			// closed and drained
			p.mu.Unlock()
			return
		}
		task := p.tasks.Remove().(func())
		p.mu.Unlock()

		task()
	}
}

// Submit queues task for execution.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.tasks.Add(task)
	p.cond.Signal()
	return nil
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Close stops accepting work, runs what is already queued and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

type result[T any] struct {
	val T
	err error
}

// Do runs fn on the pool and waits for its result.
//
// If ctx ends first Do returns ctx.Err(); fn still runs to completion and its
// result is discarded. A panic in fn is returned as an error.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	err := p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("workpool: task panicked: %v", r)}
			}
		}()
		v, err := fn()
		done <- result[T]{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
