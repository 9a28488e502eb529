package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
)

// RetryWorker polls the job store for failed jobs whose backoff delay has
// elapsed and re-enqueues them.
//
// This store-backed approach means retries survive server restarts:
// scheduled retry times are persisted, not held in memory.
type RetryWorker struct {
	repo     repository.JobRepository
	q        *queue.Queue
	interval time.Duration
	logger   *zap.Logger
}

func NewRetryWorker(
	repo repository.JobRepository,
	q *queue.Queue,
	interval time.Duration,
	logger *zap.Logger,
) *RetryWorker {
	return &RetryWorker{repo: repo, q: q, interval: interval, logger: logger}
}

// Run ticks every interval and re-enqueues any due retries.
// Stops cleanly when ctx is cancelled.
func (rw *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("retry worker started", zap.Duration("interval", rw.interval))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			rw.poll(ctx)
		}
	}
}

func (rw *RetryWorker) poll(ctx context.Context) {
	jobs, err := rw.repo.FindDueRetries(ctx, time.Now().UTC())
	if err != nil {
		rw.logger.Error("retry poll error", zap.Error(err))
		return
	}

	requeued := 0
	for _, j := range jobs {
		if err := rw.q.ReEnqueue(ctx, j); err != nil {
			rw.logger.Warn("could not re-enqueue retry",
				zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		requeued++
	}

	if requeued > 0 {
		rw.logger.Info("re-enqueued due retries", zap.Int("count", requeued))
	}
}
