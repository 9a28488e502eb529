package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/ratelimiter"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnCompleted func(jobType string, latency time.Duration)
	OnFailed    func(jobType string)
}

// Pool manages the lifecycle of all workers.
// All workers share the same priority queue and handler registry — the
// queue's cascading-select dequeue handles priority ordering internally, and
// concurrent execution of two different jobs is always safe because state
// transitions go through the job store's atomic updates.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates size identical workers.
func NewPool(
	size int,
	pq *queue.PriorityQueue,
	repo repository.JobRepository,
	q *queue.Queue,
	registry *Registry,
	limiter *ratelimiter.JobLimiters,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(
			i, pq, repo, q, registry, limiter,
			logger.With(zap.Int("worker_id", i)),
			hooks.OnCompleted,
			hooks.OnFailed,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight jobs finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
