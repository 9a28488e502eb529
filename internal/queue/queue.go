package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
)

// DeadLetterJobType is the internal job type used to record terminally failed
// jobs for operator visibility. Its handler only logs; it never retries the
// original work, and exhausting a dead-letter job never spawns another one.
const DeadLetterJobType = "job.dead_letter"

// DeadLetterPayload is the payload of a DeadLetterJobType job.
type DeadLetterPayload struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Reason  string `json:"reason"`
}

// Options tunes a single enqueue. The zero value means "all defaults".
type Options struct {
	Priority    domain.Priority
	Delay       time.Duration
	MaxAttempts int
	Backoff     *domain.BackoffPolicy
	// DedupeKey short-circuits the enqueue to the existing job when a job
	// with the same key was already created.
	DedupeKey string
	// RetentionOnComplete / RetentionOnFail override the global purge window
	// for this job once it reaches a terminal state. Zero means "use the
	// purge caller's cutoff".
	RetentionOnComplete time.Duration
	RetentionOnFail     time.Duration
}

// Defaults are applied to every enqueue that does not override them.
type Defaults struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Queue is the typed enqueue/inspect/retry/purge contract over the job store.
// It owns every job state transition together with the workers; producers
// only ever call Enqueue and the read-side operations.
type Queue struct {
	repo   repository.JobRepository
	pq     *PriorityQueue
	def    Defaults
	logger *zap.Logger
	now    func() time.Time

	cron      *cron.Cron
	schedMu   sync.Mutex
	schedules map[string]cron.EntryID
}

// NewService wires the queue service. Zero-valued Defaults fall back to
// maxAttempts=3 and a 5s exponential backoff base.
func NewService(repo repository.JobRepository, pq *PriorityQueue, def Defaults, logger *zap.Logger) *Queue {
	if def.MaxAttempts <= 0 {
		def.MaxAttempts = 3
	}
	if def.BackoffBase <= 0 {
		def.BackoffBase = 5 * time.Second
	}

	cronLog := newCronLogger(logger.Named("recurring"))
	return &Queue{
		repo:   repo,
		pq:     pq,
		def:    def,
		logger: logger,
		now:    time.Now,
		// SkipIfStillRunning prevents a slow recurring enqueue from
		// overlapping the next firing of the same schedule.
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		schedules: make(map[string]cron.EntryID),
	}
}

// Enqueue validates, persists and dispatches one job, returning its ID.
// It returns as soon as the job is durably recorded; it never waits for
// processing. Validation failures surface synchronously as ValidationError.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts *Options) (string, error) {
	if strings.TrimSpace(jobType) == "" {
		return "", &domain.ValidationError{Field: "type", Reason: "must not be empty"}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &domain.ValidationError{Field: "payload", Reason: "not serializable: " + err.Error()}
	}

	if opts == nil {
		opts = &Options{}
	}

	if opts.DedupeKey != "" {
		existing, err := q.repo.GetByDedupeKey(ctx, opts.DedupeKey)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			return existing.ID, nil
		}
	}

	j, err := q.buildJob(jobType, raw, opts)
	if err != nil {
		return "", err
	}

	if err := q.repo.Create(ctx, j); err != nil {
		// A concurrent enqueue with the same dedupe key won the insert race;
		// short-circuit to its job like the lookup above would have.
		if opts.DedupeKey != "" && errors.Is(err, domain.ErrDuplicateKey) {
			existing, lookupErr := q.repo.GetByDedupeKey(ctx, opts.DedupeKey)
			if lookupErr != nil {
				return "", fmt.Errorf("dedupe lookup after conflict: %w", lookupErr)
			}
			return existing.ID, nil
		}
		return "", fmt.Errorf("persist job: %w", err)
	}

	if j.State == domain.StateWaiting {
		q.dispatch(ctx, j)
	}
	return j.ID, nil
}

// ScheduleRecurring registers a recurring enqueue for jobType on a standard
// 5-field cron expression and returns the schedule's ID. Occurrences that
// would overlap a still-running previous firing of the same schedule are
// skipped, never double-fired.
func (q *Queue) ScheduleRecurring(jobType, cronExpr string, payload any) (string, error) {
	if strings.TrimSpace(jobType) == "" {
		return "", &domain.ValidationError{Field: "type", Reason: "must not be empty"}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &domain.ValidationError{Field: "payload", Reason: "not serializable: " + err.Error()}
	}
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCron, err)
	}

	scheduleID := uuid.New().String()
	entryID, err := q.cron.AddFunc(cronExpr, func() {
		if _, err := q.Enqueue(context.Background(), jobType, json.RawMessage(raw), nil); err != nil {
			q.logger.Error("recurring enqueue failed",
				zap.String("schedule_id", scheduleID),
				zap.String("job_type", jobType),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return "", fmt.Errorf("register schedule: %w", err)
	}

	q.schedMu.Lock()
	q.schedules[scheduleID] = entryID
	q.schedMu.Unlock()

	q.logger.Info("recurring schedule registered",
		zap.String("schedule_id", scheduleID),
		zap.String("job_type", jobType),
		zap.String("cron", cronExpr),
	)
	return scheduleID, nil
}

// CancelRecurring removes a recurring schedule. Unknown IDs are a no-op.
func (q *Queue) CancelRecurring(scheduleID string) {
	q.schedMu.Lock()
	defer q.schedMu.Unlock()
	if entryID, ok := q.schedules[scheduleID]; ok {
		q.cron.Remove(entryID)
		delete(q.schedules, scheduleID)
	}
}

// Start begins firing recurring schedules. Stop halts them; running firings
// finish on their own.
func (q *Queue) Start() { q.cron.Start() }
func (q *Queue) Stop()  { q.cron.Stop() }

// GetStatus returns the job's current snapshot, or (nil, nil) when the id is
// unknown. It never returns an error for a missing job.
func (q *Queue) GetStatus(ctx context.Context, id string) (*domain.Job, error) {
	j, err := q.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return j, err
}

// Cancel prevents a future (re)scheduled execution of the job. It is a no-op
// when the job has already finished or no longer exists, and it does not
// interrupt an execution that is already in flight.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	j, err := q.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch j.State {
	case domain.StateCompleted:
		return nil
	case domain.StateFailed:
		if j.NextRetryAt == nil {
			return nil // already terminal
		}
		// A retry is still pending; fall through and cancel it.
	case domain.StateActive:
		// Best effort only: the worker owns the in-flight outcome.
		return nil
	}

	return q.repo.MarkFailed(ctx, id, j.AttemptsMade, "cancelled by caller", q.now().UTC())
}

// RetryFailed re-enqueues every failed job that still has attempts left,
// optionally filtered by job type. The returned count is the number of jobs
// successfully re-enqueued, not the number that eventually succeed.
func (q *Queue) RetryFailed(ctx context.Context, typeFilter string) (int, error) {
	jobs, err := q.repo.ListRetryable(ctx, typeFilter)
	if err != nil {
		return 0, fmt.Errorf("list retryable: %w", err)
	}

	retried := 0
	for _, j := range jobs {
		if err := q.ReEnqueue(ctx, j); err != nil {
			q.logger.Warn("could not re-enqueue failed job",
				zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		retried++
	}
	return retried, nil
}

// PurgeCompleted deletes completed and terminally failed jobs that finished
// longer than olderThan ago. Waiting, active and delayed jobs are never
// removed regardless of age.
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now().UTC()
	return q.repo.PurgeFinished(ctx, now.Add(-olderThan), now)
}

// ReEnqueue returns an already-persisted job to waiting and places it back on
// the dispatch queue. Used by the retry and delayed-job pollers.
//
// The state commit must happen before the item becomes visible: a worker that
// dequeues first would see a non-waiting job and drop the item, leaving the
// job in waiting with no channel entry and no poller that selects it.
func (q *Queue) ReEnqueue(ctx context.Context, j *domain.Job) error {
	if err := q.repo.ResetForRetry(ctx, j.ID); err != nil {
		return fmt.Errorf("reset for retry: %w", err)
	}
	if err := q.pq.Enqueue(Item{JobID: j.ID, Type: j.Type, Priority: j.Priority}); err != nil {
		q.park(ctx, j, err)
		return err
	}
	return nil
}

// CompleteJob records a successful execution. Called by the worker only.
func (q *Queue) CompleteJob(ctx context.Context, id string) error {
	return q.repo.MarkCompleted(ctx, id, q.now().UTC())
}

// FailAttempt applies the retry/backoff rule after a failed execution.
// attemptsMade increments exactly once per failed attempt. If attempts remain
// and the error is not terminal, the job is rescheduled after the backoff
// delay; otherwise it is failed for good and a dead-letter record is queued.
// The worker reports failures here and never decides terminality itself.
func (q *Queue) FailAttempt(ctx context.Context, j *domain.Job, execErr error) error {
	attempts := j.AttemptsMade + 1
	msg := execErr.Error()
	now := q.now().UTC()

	if !domain.IsTerminal(execErr) && attempts < j.MaxAttempts {
		delay := j.Backoff.Delay(attempts)
		if err := q.repo.ScheduleRetry(ctx, j.ID, attempts, now.Add(delay), msg); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		return nil
	}

	if err := q.repo.MarkFailed(ctx, j.ID, attempts, msg, now); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	q.recordDeadLetter(ctx, j, msg)
	return nil
}

// recordDeadLetter enqueues the low-priority observability job for a
// terminally failed job. Dead-letter jobs themselves are exempt.
func (q *Queue) recordDeadLetter(ctx context.Context, j *domain.Job, reason string) {
	if j.Type == DeadLetterJobType {
		return
	}
	_, err := q.Enqueue(ctx, DeadLetterJobType, DeadLetterPayload{
		JobID:   j.ID,
		JobType: j.Type,
		Reason:  reason,
	}, &Options{Priority: domain.PriorityLow, MaxAttempts: 1})
	if err != nil {
		q.logger.Warn("could not record dead letter",
			zap.String("job_id", j.ID), zap.Error(err))
	}
}

func (q *Queue) buildJob(jobType string, raw json.RawMessage, opts *Options) (*domain.Job, error) {
	prio := opts.Priority
	if prio == "" {
		prio = domain.PriorityNormal
	}
	if !prio.IsValid() {
		return nil, &domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", prio)}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.def.MaxAttempts
	}

	backoff := domain.BackoffPolicy{Kind: domain.BackoffExponential, Base: q.def.BackoffBase}
	if opts.Backoff != nil {
		if !opts.Backoff.Kind.IsValid() {
			return nil, &domain.ValidationError{Field: "backoff", Reason: fmt.Sprintf("unknown kind %q", opts.Backoff.Kind)}
		}
		backoff = *opts.Backoff
	}

	now := q.now().UTC()
	at := now.Add(opts.Delay)
	j := &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     raw,
		Priority:    prio,
		State:       domain.StateWaiting,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		ScheduledAt: &at,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Delay > 0 {
		j.State = domain.StateDelayed
	}
	if opts.DedupeKey != "" {
		key := opts.DedupeKey
		j.DedupeKey = &key
	}
	if opts.RetentionOnComplete > 0 {
		d := opts.RetentionOnComplete
		j.RetentionOnComplete = &d
	}
	if opts.RetentionOnFail > 0 {
		d := opts.RetentionOnFail
		j.RetentionOnFail = &d
	}
	return j, nil
}

// dispatch hands a waiting job to the in-memory priority queue. If the tier
// is saturated the job is parked as delayed with its scheduled_at already
// due, so the delayed-job poller redelivers it on its next tick instead of
// the job being lost.
func (q *Queue) dispatch(ctx context.Context, j *domain.Job) {
	err := q.pq.Enqueue(Item{JobID: j.ID, Type: j.Type, Priority: j.Priority})
	if err != nil {
		q.park(ctx, j, err)
	}
}

// park moves a job whose dispatch tier is saturated to delayed with an
// immediately due scheduled_at, so the delayed poller redelivers it once
// capacity frees up.
func (q *Queue) park(ctx context.Context, j *domain.Job, cause error) {
	q.logger.Warn("dispatch queue full: parking job for redelivery",
		zap.String("job_id", j.ID),
		zap.String("job_type", j.Type),
		zap.Error(cause),
	)
	if err := q.repo.Park(ctx, j.ID, q.now().UTC()); err != nil {
		q.logger.Error("failed to park job", zap.String("job_id", j.ID), zap.Error(err))
	}
}

// cronLogger adapts zap to the robfig/cron logging interface.
type cronLogger struct {
	l *zap.SugaredLogger
}

func newCronLogger(l *zap.Logger) cronLogger {
	return cronLogger{l: l.Sugar()}
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
