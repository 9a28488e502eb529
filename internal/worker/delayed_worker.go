package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
)

// DelayedWorker polls the job store for delayed jobs whose scheduled_at has
// passed and enqueues them for immediate processing.
//
// Jobs created with a delay are stored with state=delayed and bypass the
// dispatch queue until their time arrives. The same path redelivers jobs
// that were parked when a dispatch tier was saturated.
type DelayedWorker struct {
	repo     repository.JobRepository
	q        *queue.Queue
	interval time.Duration
	logger   *zap.Logger
}

func NewDelayedWorker(
	repo repository.JobRepository,
	q *queue.Queue,
	interval time.Duration,
	logger *zap.Logger,
) *DelayedWorker {
	return &DelayedWorker{repo: repo, q: q, interval: interval, logger: logger}
}

// Run ticks every interval and enqueues any jobs that are now due.
// Stops cleanly when ctx is cancelled.
func (dw *DelayedWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dw.interval)
	defer ticker.Stop()

	dw.logger.Info("delayed-job worker started", zap.Duration("interval", dw.interval))

	for {
		select {
		case <-ctx.Done():
			dw.logger.Info("delayed-job worker stopping")
			return
		case <-ticker.C:
			dw.poll(ctx)
		}
	}
}

func (dw *DelayedWorker) poll(ctx context.Context) {
	jobs, err := dw.repo.FindDueDelayed(ctx, time.Now().UTC())
	if err != nil {
		dw.logger.Error("delayed poll error", zap.Error(err))
		return
	}

	enqueued := 0
	for _, j := range jobs {
		if err := dw.q.ReEnqueue(ctx, j); err != nil {
			dw.logger.Warn("could not enqueue delayed job",
				zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		dw.logger.Info("enqueued due delayed jobs", zap.Int("count", enqueued))
	}
}
