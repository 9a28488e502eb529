package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

const jobColumns = `id, type, payload, priority, state, attempts_made, max_attempts,
	backoff_kind, backoff_base_ms, dedupe_key, stage,
	retention_on_complete_ms, retention_on_fail_ms, next_retry_at,
	scheduled_at, finished_at, last_error, created_at, updated_at`

type pgJobRepository struct {
	pool *pgxpool.Pool
}

// NewPgJobRepository returns a JobRepository backed by PostgreSQL.
func NewPgJobRepository(pool *pgxpool.Pool) JobRepository {
	return &pgJobRepository{pool: pool}
}

func (r *pgJobRepository) Create(ctx context.Context, j *domain.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs
			(id, type, payload, priority, state, attempts_made, max_attempts,
			 backoff_kind, backoff_base_ms, dedupe_key, stage,
			 retention_on_complete_ms, retention_on_fail_ms, scheduled_at,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		j.ID, j.Type, j.Payload, j.Priority, j.State, j.AttemptsMade, j.MaxAttempts,
		j.Backoff.Kind, j.Backoff.Base.Milliseconds(), j.DedupeKey, j.Stage,
		durationMs(j.RetentionOnComplete), durationMs(j.RetentionOnFail),
		j.ScheduledAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505). Create hits it when two producers race past the
// dedupe lookup with the same key.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (r *pgJobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, err
}

func (r *pgJobRepository) GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE dedupe_key = $1`, key)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, err
}

func (r *pgJobRepository) MarkActive(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET state = 'active', updated_at = NOW()
		WHERE id = $1 AND state = 'waiting'`, id)
	if err != nil {
		return err
	}
	// Zero rows means the job was cancelled or claimed since dequeue.
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgJobRepository) MarkCompleted(ctx context.Context, id string, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'completed', stage = 'done', finished_at = $1,
		    last_error = NULL, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $2`, finishedAt, id)
	return err
}

func (r *pgJobRepository) MarkFailed(ctx context.Context, id string, attemptsMade int, errMsg string, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'failed', attempts_made = $1, last_error = $2,
		    finished_at = $3, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $4`, attemptsMade, errMsg, finishedAt, id)
	return err
}

func (r *pgJobRepository) ScheduleRetry(ctx context.Context, id string, attemptsMade int, nextRetryAt time.Time, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'failed', attempts_made = $1, next_retry_at = $2,
		    last_error = $3, updated_at = NOW()
		WHERE id = $4`, attemptsMade, nextRetryAt, errMsg, id)
	return err
}

func (r *pgJobRepository) ResetForRetry(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'waiting', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *pgJobRepository) Park(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'delayed', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1`, id, at)
	return err
}

func (r *pgJobRepository) UpdateState(ctx context.Context, id string, state domain.State) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE jobs SET state = $1, updated_at = NOW() WHERE id = $2`, state, id)
	return err
}

func (r *pgJobRepository) UpdateStage(ctx context.Context, id string, stage domain.Stage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE jobs SET stage = $1, updated_at = NOW() WHERE id = $2`, stage, id)
	return err
}

func (r *pgJobRepository) FindDueRetries(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE state = 'failed'
		  AND attempts_made < max_attempts
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $1
		LIMIT 500`, now)
	if err != nil {
		return nil, fmt.Errorf("find due retries: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *pgJobRepository) FindDueDelayed(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE state = 'delayed'
		  AND scheduled_at <= $1
		LIMIT 500`, now)
	if err != nil {
		return nil, fmt.Errorf("find due delayed: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *pgJobRepository) ListRetryable(ctx context.Context, typeFilter string) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE state = 'failed'
		  AND attempts_made < max_attempts`
	args := []any{}
	if typeFilter != "" {
		query += ` AND type = $1`
		args = append(args, typeFilter)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list retryable: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *pgJobRepository) PurgeFinished(ctx context.Context, cutoff, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE state IN ('completed', 'failed')
		  AND finished_at IS NOT NULL
		  AND CASE
		        WHEN state = 'completed' AND retention_on_complete_ms IS NOT NULL
		          THEN finished_at + retention_on_complete_ms * interval '1 millisecond' < $2
		        WHEN state = 'failed' AND retention_on_fail_ms IS NOT NULL
		          THEN finished_at + retention_on_fail_ms * interval '1 millisecond' < $2
		        ELSE finished_at < $1
		      END`, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgJobRepository) CountPurgeable(ctx context.Context, cutoff, now time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobs
		WHERE state IN ('completed', 'failed')
		  AND finished_at IS NOT NULL
		  AND CASE
		        WHEN state = 'completed' AND retention_on_complete_ms IS NOT NULL
		          THEN finished_at + retention_on_complete_ms * interval '1 millisecond' < $2
		        WHEN state = 'failed' AND retention_on_fail_ms IS NOT NULL
		          THEN finished_at + retention_on_fail_ms * interval '1 millisecond' < $2
		        ELSE finished_at < $1
		      END`, cutoff, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count purgeable jobs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j               domain.Job
		backoffKind     string
		backoffBaseMs   int64
		retCompleteMs   *int64
		retFailMs       *int64
	)
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &j.Priority, &j.State,
		&j.AttemptsMade, &j.MaxAttempts,
		&backoffKind, &backoffBaseMs,
		&j.DedupeKey, &j.Stage,
		&retCompleteMs, &retFailMs, &j.NextRetryAt,
		&j.ScheduledAt, &j.FinishedAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Backoff = domain.BackoffPolicy{
		Kind: domain.BackoffKind(backoffKind),
		Base: time.Duration(backoffBaseMs) * time.Millisecond,
	}
	j.RetentionOnComplete = msDuration(retCompleteMs)
	j.RetentionOnFail = msDuration(retFailMs)
	return &j, nil
}

func durationMs(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}

func msDuration(ms *int64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}

func scanJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
