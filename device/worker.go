package device

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Job is a unit of blocking work run by a Worker
type Job func(ctx context.Context) error

// Worker runs a device's blocking I/O on its own goroutine, one job at a
// time in submission order, so the bus dispatcher is never stalled by a slow
// link.  Errors from jobs are reported with the owning Base's SendError.
// Workers must be created with NewWorker.
type Worker struct {
	base   *Base
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	once sync.Once
}

// NewWorker starts a worker reporting errors through base.  queue is the
// number of jobs that may be pending before Submit blocks.
func NewWorker(base *Base, queue int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		base:   base,
		jobs:   make(chan Job, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.jobs:
			if err := job(w.ctx); err != nil && w.ctx.Err() == nil {
				w.base.SendError(err)
			}
		}
	}
}

// Submit queues job.  It returns false if the worker has been stopped.
func (w *Worker) Submit(job Job) bool {
	select {
	case <-w.ctx.Done():
		return false
	default:
	}
	select {
	case w.jobs <- job:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// Context is cancelled when the worker is stopped
func (w *Worker) Context() context.Context {
	return w.ctx
}

// Stop cancels the running job's context and waits for the goroutine to
// exit.  Pending jobs are discarded.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
}

// NewBackOff returns the exponential backoff used for device communication,
// starting at 25 ms and doubling up to 1 s between attempts
func NewBackOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock}
}

// Retry calls op until it succeeds, returns a permanent error, ctx is done,
// or retries additional attempts have failed.  Wrap an error with
// backoff.Permanent to stop retrying early.
func Retry(ctx context.Context, retries int, op func() error) error {
	if retries < 0 {
		retries = 0
	}
	b := NewBackOff()
	b.Reset()
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}
