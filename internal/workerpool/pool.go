// Package workerpool implements the encode worker pool: N goroutines each
// bound to one encoder instance, dispatched FIFO so results are always
// consumed in dispatch order.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ustreamer-go/ustreamer/internal/encoder"
	"github.com/ustreamer-go/ustreamer/internal/frame"
)

// Job is a unit of encode work submitted to the pool.
type Job struct {
	Src      *frame.Frame
	ForceKey bool
}

// Result is a completed job: the encoded frame, the worker that produced
// it, the time the encode took, or an error if the encode failed.
type Result struct {
	WorkerIndex int
	Dest        *frame.Frame
	Duration    time.Duration
	Err         error
}

type worker struct {
	index   int
	jobCh   chan Job
	doneCh  chan Result
	encoder *encoder.Dispatcher
}

// Pool is the FIFO-ordered worker pool from spec §4.4. A "free workers"
// semaphore gates Submit; a dispatch-order queue lets Consume always
// return results oldest-dispatched-first, even if a later worker finishes
// its encode sooner.
type Pool struct {
	mu       sync.Mutex
	workers  []*worker
	free     map[int]bool
	freeSem  *semaphore.Weighted
	fifo     []int
	fluency  *FluencyController
}

// New builds a pool of n workers, each driving its own Dispatcher instance.
// newDispatcher is called once per worker so hardware backends that are not
// safe to share across goroutines each get an independent instance.
func New(n int, newDispatcher func(workerIndex int) *encoder.Dispatcher) *Pool {
	p := &Pool{
		workers: make([]*worker, n),
		free:    make(map[int]bool, n),
		freeSem: semaphore.NewWeighted(int64(n)),
		fluency: NewFluencyController(n),
	}
	for i := 0; i < n; i++ {
		w := &worker{
			index:   i,
			jobCh:   make(chan Job, 1),
			doneCh:  make(chan Result, 1),
			encoder: newDispatcher(i),
		}
		p.workers[i] = w
		p.free[i] = true
		go p.runWorker(w)
	}
	return p
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int { return len(p.workers) }

// Fluency returns the pool's admission controller.
func (p *Pool) Fluency() *FluencyController { return p.fluency }

func (p *Pool) runWorker(w *worker) {
	for job := range w.jobCh {
		dest := frame.New()
		begin := time.Now()
		err := w.encoder.Compress(w.index, job.Src, dest, job.ForceKey)
		w.doneCh <- Result{WorkerIndex: w.index, Dest: dest, Duration: time.Since(begin), Err: err}
	}
}

// Submit blocks until a worker is free (or ctx is done), then hands it the
// job. Ties among free workers are broken by lowest index.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if err := p.freeSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("workerpool: submit: %w", err)
	}

	p.mu.Lock()
	idx := -1
	for i := range p.workers {
		if p.free[i] {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.mu.Unlock()
		p.freeSem.Release(1)
		return fmt.Errorf("workerpool: submit: no free worker despite semaphore grant")
	}
	p.free[idx] = false
	p.fifo = append(p.fifo, idx)
	p.mu.Unlock()

	p.workers[idx].jobCh <- job
	return nil
}

// TryConsumeOldest returns the result of the oldest-dispatched worker if it
// has finished, without blocking. ok is false when the FIFO is empty or the
// front worker has not finished yet.
func (p *Pool) TryConsumeOldest() (Result, bool) {
	p.mu.Lock()
	if len(p.fifo) == 0 {
		p.mu.Unlock()
		return Result{}, false
	}
	idx := p.fifo[0]
	p.mu.Unlock()

	select {
	case res := <-p.workers[idx].doneCh:
		p.mu.Lock()
		p.fifo = p.fifo[1:]
		p.free[idx] = true
		p.mu.Unlock()
		p.freeSem.Release(1)
		p.fluency.RecordDuration(res.Duration)
		return res, true
	default:
		return Result{}, false
	}
}

// ConsumeOldest blocks until the oldest-dispatched worker finishes or ctx
// is done.
func (p *Pool) ConsumeOldest(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if len(p.fifo) == 0 {
		p.mu.Unlock()
		return Result{}, fmt.Errorf("workerpool: consume: nothing dispatched")
	}
	idx := p.fifo[0]
	p.mu.Unlock()

	select {
	case res := <-p.workers[idx].doneCh:
		p.mu.Lock()
		p.fifo = p.fifo[1:]
		p.free[idx] = true
		p.mu.Unlock()
		p.freeSem.Release(1)
		p.fluency.RecordDuration(res.Duration)
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// PrepareAll calls Prepare(tuple) on every worker's encoder instance. It
// must only be called when no job is in flight — at session start or
// immediately after a format renegotiation.
func (p *Pool) PrepareAll(tuple encoder.PrepareTuple) error {
	for _, w := range p.workers {
		if err := w.encoder.Prepare(tuple); err != nil {
			return fmt.Errorf("workerpool: prepare worker %d: %w", w.index, err)
		}
	}
	return nil
}

// Pending reports how many jobs are currently dispatched and unconsumed.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fifo)
}

// Close stops accepting new work by closing every worker's mailbox. It does
// not wait for in-flight jobs; callers should drain with ConsumeOldest
// until Pending() is zero first.
func (p *Pool) Close() {
	for _, w := range p.workers {
		close(w.jobCh)
	}
}
