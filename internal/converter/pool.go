package converter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harliandi/sizefit/pkg/metrics"
)

var (
	// ErrPoolBusy is returned when the worker pool is at capacity
	ErrPoolBusy = errors.New("worker pool is busy, please retry later")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// job is one queued resize.
type job struct {
	ctx    context.Context
	data   []byte
	req    Request
	result chan<- jobResult
}

type jobResult struct {
	out *Output
	err error
}

// WorkerPool bounds the number of searches running at once.
type WorkerPool struct {
	conv    *Converter
	jobs    chan job
	workers int
	active  atomic.Int32
	logger  *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(conv *Converter, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		conv:    conv,
		jobs:    make(chan job, workers*2), // Buffered channel
		workers: workers,
		logger:  conv.logger,
	}
}

// Start starts the worker pool goroutines
func (p *WorkerPool) Start() {
	p.once.Do(func() {
		p.logger.Info("starting worker pool", zap.Int("workers", p.workers))
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// worker processes jobs from the job channel
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.active.Add(1)
		p.publish()

		var r jobResult
		if err := j.ctx.Err(); err != nil {
			r.err = err
		} else {
			r.out, r.err = p.conv.Resize(j.ctx, j.data, j.req)
		}

		p.active.Add(-1)
		p.publish()

		// Result channel is buffered; the receiver may already be gone.
		select {
		case j.result <- r:
		default:
			p.logger.Warn("dropping resize result", zap.Int("worker", id))
		}
	}
}

func (p *WorkerPool) publish() {
	active, queued := p.Stats()
	metrics.UpdateWorkerPoolMetrics(queued, active)
}

// Submit queues a resize and waits for it. It returns ErrPoolBusy
// immediately when the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, data []byte, req Request) (*Output, error) {
	p.Start()

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, ErrPoolStopped
	}

	resultChan := make(chan jobResult, 1)
	j := job{ctx: ctx, data: data, req: req, result: resultChan}

	select {
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	case p.jobs <- j:
		p.mu.RUnlock()
		p.publish()
	default:
		p.mu.RUnlock()
		return nil, ErrPoolBusy
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultChan:
		return r.out, r.err
	}
}

// SubmitWithRetry submits a job to the worker pool with retry on busy
func (p *WorkerPool) SubmitWithRetry(ctx context.Context, data []byte, req Request, maxRetries int) (*Output, error) {
	lastErr := ErrPoolBusy
	for i := 0; i < maxRetries; i++ {
		out, err := p.Submit(ctx, data, req)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrPoolBusy) {
			return nil, err
		}
		lastErr = err

		// Linear backoff
		waitTime := time.Duration(i+1) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return nil, lastErr
}

// Stop gracefully shuts down the worker pool
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Stats returns the number of running and queued jobs.
func (p *WorkerPool) Stats() (active, queued int) {
	return int(p.active.Load()), len(p.jobs)
}
