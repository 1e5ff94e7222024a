// Package workerpool runs submitted jobs on a fixed set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

var ErrStopped = errors.New("worker pool stopped")

// Pool 通用协程池
type Pool struct {
	jobs    chan func()
	workers int
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	log *logger.Logger
}

func New(workers, queueSize int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		jobs:    make(chan func(), queueSize),
		workers: workers,
		log:     log.Named("workerpool"),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(workerID, job)
			}
		}(i)
	}
	p.log.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue", cap(p.jobs)))
}

// run 使用 recover 防止单个任务 panic 导致 worker 退出
func (p *Pool) run(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit queues job, waiting for room until ctx is done.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues job only if there is room right now.
func (p *Pool) TrySubmit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop refuses new jobs, finishes the queued ones and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
