// Package dispatcher implements the worker-pool scheduler described in
// the component design: a fixed set of goroutines drain a shared task
// queue, and callers are responsible for ensuring at most one scheduled
// task per actor is in flight at a time (the per-actor "scheduled" flag
// lives in the system package, next to the actor it guards).
package dispatcher

import (
	"runtime"
	"sync"
)

// Task is one unit of dispatcher work: typically "drain up to N
// envelopes from one actor's mailbox".
type Task func()

// Dispatcher runs submitted Tasks on a fixed-size worker pool.
type Dispatcher struct {
	tasks   chan Task
	workers int
	quit    chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Dispatcher with the given number of workers and task
// queue depth. workers <= 0 defaults to runtime.NumCPU()*2, matching the
// component design's default.
func New(workers, queueDepth int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if queueDepth <= 0 {
		queueDepth = 4096
	}
	return &Dispatcher{
		tasks:   make(chan Task, queueDepth),
		workers: workers,
		quit:    make(chan struct{}),
	}
}

// Start launches the worker goroutines. Safe to call once; subsequent
// calls are no-ops.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case task, ok := <-d.tasks:
			if !ok {
				return
			}
			task()
		case <-d.quit:
			return
		}
	}
}

// Submit enqueues task for execution. It blocks if the task queue is
// full, applying natural backpressure rather than dropping work.
func (d *Dispatcher) Submit(task Task) {
	select {
	case d.tasks <- task:
	case <-d.quit:
	}
}

// TrySubmit attempts to enqueue task without blocking, reporting whether
// it was accepted.
func (d *Dispatcher) TrySubmit(task Task) bool {
	select {
	case d.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop signals all workers to exit and waits for them to drain. Queued
// but un-started tasks are discarded.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
}
