// File: power/worker.go
// Package power: single-goroutine deferred executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The park side effects run off the caller's thread. One worker is
// enough: the only deferred work in this core is the pending park, and
// FIFO order keeps park generations naturally serialized.

package power

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

type job struct {
	runAt time.Time
	fn    func()
}

// Worker executes submitted jobs on a single goroutine after their
// delay elapses.
type Worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   *queue.Queue
	closed bool
	done   chan struct{}
}

// NewWorker starts the worker goroutine.
func NewWorker() *Worker {
	w := &Worker{jobs: queue.New(), done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// Submit enqueues fn to run no earlier than delay from now.
func (w *Worker) Submit(delay time.Duration, fn func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerClosed
	}
	w.jobs.Add(job{runAt: time.Now().Add(delay), fn: fn})
	w.cond.Signal()
	return nil
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for w.jobs.Length() == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.jobs.Length() == 0 {
			w.mu.Unlock()
			return
		}
		j := w.jobs.Remove().(job)
		w.mu.Unlock()

		if d := time.Until(j.runAt); d > 0 {
			time.Sleep(d)
		}
		w.execute(j.fn)
	}
}

// execute runs the job, recovering from panics to keep the worker
// alive.
func (w *Worker) execute(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// Close drains pending jobs and waits for the worker to exit. Safe to
// call once; later calls return immediately without waiting.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}
