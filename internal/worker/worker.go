package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/ratelimiter"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
)

// Worker is a single goroutine that continuously pulls items from the
// priority queue, dispatches them to the registered handler for the job's
// type, reports progress checkpoints, and hands failures back to the queue
// service so it can apply the retry/backoff rule. The worker never decides
// terminal failure itself; that is the queue's call based on attempts made
// versus the attempt ceiling.
type Worker struct {
	id       int
	pq       *queue.PriorityQueue
	repo     repository.JobRepository
	q        *queue.Queue
	registry *Registry
	limiter  *ratelimiter.JobLimiters
	logger   *zap.Logger

	// Hooks for metrics — injected by the pool so the worker stays metrics-agnostic.
	onCompleted func(jobType string, latency time.Duration)
	onFailed    func(jobType string)
}

// NewWorker constructs a worker. onCompleted and onFailed are optional (nil = no-op).
func NewWorker(
	id int,
	pq *queue.PriorityQueue,
	repo repository.JobRepository,
	q *queue.Queue,
	registry *Registry,
	limiter *ratelimiter.JobLimiters,
	logger *zap.Logger,
	onCompleted func(string, time.Duration),
	onFailed func(string),
) *Worker {
	if onCompleted == nil {
		onCompleted = func(string, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(string) {}
	}
	return &Worker{
		id: id, pq: pq, repo: repo, q: q,
		registry: registry, limiter: limiter, logger: logger,
		onCompleted: onCompleted, onFailed: onFailed,
	}
}

// Run blocks until ctx is cancelled, processing one queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("id", w.id))
	for {
		item, ok := w.pq.Dequeue(ctx)
		if !ok {
			w.logger.Info("worker stopping", zap.Int("id", w.id))
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	log := w.logger.With(
		zap.String("job_id", item.JobID),
		zap.String("job_type", item.Type),
	)

	job, err := w.repo.GetByID(ctx, item.JobID)
	if err != nil {
		log.Error("failed to fetch job", zap.Error(err))
		return
	}

	// A cancellation between enqueue and pickup is valid; skip silently.
	if job.State != domain.StateWaiting {
		log.Debug("job no longer waiting, skipping", zap.String("state", string(job.State)))
		return
	}

	if err := w.repo.MarkActive(ctx, job.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Lost the claim: cancelled or taken since the state check.
			log.Debug("job no longer claimable, skipping")
		} else {
			log.Error("failed to mark job active", zap.Error(err))
		}
		return
	}

	progress := func(stage domain.Stage) {
		if err := w.repo.UpdateStage(ctx, job.ID, stage); err != nil {
			log.Warn("failed to record progress", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
	progress(domain.StageReceived)

	h, timeout, ok := w.registry.Resolve(job.Type)
	if !ok {
		// No handler can ever run this job; retrying would not help.
		w.fail(ctx, log, job, domain.Terminal(fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)))
		return
	}

	// Block here until the per-type rate limiter grants a token.
	if err := w.limiter.Wait(ctx, job.Type); err != nil {
		// ctx cancelled while waiting — worker is shutting down.
		return
	}

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, timeout)
	err = h.Handle(hctx, job, progress)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		if hctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("attempt exceeded %s timeout: %w", timeout, err)
		}
		w.fail(ctx, log, job, err)
		return
	}

	if err := w.q.CompleteJob(ctx, job.ID); err != nil {
		log.Error("failed to mark job completed", zap.Error(err))
		return
	}

	w.onCompleted(job.Type, elapsed)
	log.Info("job completed",
		zap.Int("attempt", job.AttemptsMade+1),
		zap.Duration("latency", elapsed),
	)
}

// fail normalizes the failure and hands it to the queue's retry machinery.
func (w *Worker) fail(ctx context.Context, log *zap.Logger, job *domain.Job, execErr error) {
	log.Warn("job attempt failed",
		zap.Int("attempt", job.AttemptsMade+1),
		zap.Int("max_attempts", job.MaxAttempts),
		zap.Bool("terminal", domain.IsTerminal(execErr)),
		zap.Error(execErr),
	)
	if err := w.q.FailAttempt(ctx, job, execErr); err != nil {
		log.Error("failed to record attempt failure", zap.Error(err))
	}
	w.onFailed(job.Type)
}
