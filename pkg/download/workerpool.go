package download

import (
	"context"
	"sync"
)

// Job fetches one task. The returned error goes to OnError.
type Job func(ctx context.Context) error

// Pool is what Run needs from a worker pool; tests replace it via PoolFactory.
type Pool interface {
	Start(ctx context.Context)
	// SubmitCtx queues job and returns early once ctx is done.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// WorkerPool drains a bounded queue with a fixed set of goroutines.
type WorkerPool struct {
	queue chan Job
	stop  chan struct{}
	size  int
	wg    sync.WaitGroup

	// OnError sees every failed job, possibly from several workers at once.
	OnError func(error)

	mu       sync.RWMutex
	shut     bool
	stopOnce sync.Once
}

// NewWorkerPool returns a pool of size workers. A non-positive backlog
// defaults to twice the worker count.
func NewWorkerPool(size, backlog int) *WorkerPool {
	size = max(size, 1)
	if backlog <= 0 {
		backlog = 2 * size
	}
	return &WorkerPool{
		queue: make(chan Job, backlog),
		stop:  make(chan struct{}),
		size:  size,
	}
}

// Start launches the workers. They exit when ctx ends or the queue is
// closed and drained.
func (p *WorkerPool) Start(ctx context.Context) {
	p.wg.Add(p.size)
	for range p.size {
		go p.work(ctx)
	}
}

func (p *WorkerPool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			if err := job(ctx); err != nil && p.OnError != nil {
				p.OnError(err)
			}
		}
	}
}

// Submit queues job without a deadline.
func (p *WorkerPool) Submit(job Job) error {
	return p.SubmitCtx(context.Background(), job)
}

// SubmitCtx queues job. It fails with ErrPoolClosed once Close has begun,
// including while it is blocked on a full queue.
func (p *WorkerPool) SubmitCtx(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shut {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job:
		return nil
	case <-p.stop:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further jobs, lets the workers finish what is queued and
// waits for them.
func (p *WorkerPool) Close() {
	p.stopOnce.Do(func() {
		// blocked submitters hold the read lock until stop fires
		close(p.stop)
		p.mu.Lock()
		p.shut = true
		close(p.queue)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// ErrPoolClosed is returned by submits after Close.
var ErrPoolClosed = &PoolError{"download: worker pool closed"}

// PoolError is the error type of pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
