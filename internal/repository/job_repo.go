package repository

import (
	"context"
	"time"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// JobRepository defines all persistence operations for jobs.
// The pgx implementation is in pg_job_repo.go.
// Tests use a hand-written mock (mock_job_repo.go).
//
// State transitions go through these methods only, and only the queue service
// and the workers call the mutating ones; producers never touch a job after
// Create.
type JobRepository interface {
	Create(ctx context.Context, j *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error)

	// MarkActive claims a waiting job for execution. It fails with
	// ErrNotFound when the job is missing or no longer waiting, so two
	// workers can never both run the same delivery.
	MarkActive(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, finishedAt time.Time) error
	// MarkFailed records a terminal failure: attempts exhausted or a
	// non-retryable error. finishedAt makes the job eligible for purging.
	MarkFailed(ctx context.Context, id string, attemptsMade int, errMsg string, finishedAt time.Time) error
	// ScheduleRetry records a failed attempt that still has retries left.
	// The job stays in state failed until the retry worker re-enqueues it.
	ScheduleRetry(ctx context.Context, id string, attemptsMade int, nextRetryAt time.Time, errMsg string) error
	// ResetForRetry returns a failed job to waiting, clearing its retry clock.
	ResetForRetry(ctx context.Context, id string) error
	// Park moves a job to delayed with the given delivery due time, so the
	// delayed poller redelivers it once capacity frees up.
	Park(ctx context.Context, id string, at time.Time) error
	UpdateState(ctx context.Context, id string, state domain.State) error
	UpdateStage(ctx context.Context, id string, stage domain.Stage) error

	FindDueRetries(ctx context.Context, now time.Time) ([]*domain.Job, error)
	FindDueDelayed(ctx context.Context, now time.Time) ([]*domain.Job, error)
	// ListRetryable returns failed jobs with attempts remaining, optionally
	// filtered by job type (empty filter = all types).
	ListRetryable(ctx context.Context, typeFilter string) ([]*domain.Job, error)

	// PurgeFinished deletes completed and terminally failed jobs whose
	// finished_at is before cutoff, honoring a job's own retention override
	// when one was set at enqueue time. Waiting, active and delayed jobs are
	// never deleted regardless of age.
	PurgeFinished(ctx context.Context, cutoff, now time.Time) (int64, error)

	// CountPurgeable reports how many jobs PurgeFinished would delete with
	// the same arguments, without deleting anything.
	CountPurgeable(ctx context.Context, cutoff, now time.Time) (int64, error)
}
