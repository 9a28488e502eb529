package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// Task is one scheduled maintenance sweep. Schedule returns the task's
// cron expression; Run performs the sweep, or only reports what it would
// do when dryRun is set.
type Task interface {
	Name() string
	Schedule() string
	Run(ctx context.Context, dryRun bool) (domain.TaskResult, error)
}

// RetentionTask deletes rows older than a retention window.
type RetentionTask struct {
	name     string
	schedule string
	store    Store
	table    string
	column   string
	maxAge   time.Duration
	now      func() time.Time
}

func NewRetentionTask(name, schedule string, store Store, table, column string, maxAge time.Duration) *RetentionTask {
	return &RetentionTask{
		name:     name,
		schedule: schedule,
		store:    store,
		table:    table,
		column:   column,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

func (t *RetentionTask) Name() string     { return t.name }
func (t *RetentionTask) Schedule() string { return t.schedule }

func (t *RetentionTask) Run(ctx context.Context, dryRun bool) (domain.TaskResult, error) {
	f := Filter{Column: t.column, Before: t.now().UTC().Add(-t.maxAge)}
	if dryRun {
		n, err := t.store.CountWhere(ctx, t.table, f)
		if err != nil {
			return domain.TaskResult{Errors: 1}, fmt.Errorf("%s: %w", t.name, err)
		}
		return domain.TaskResult{Deleted: n}, nil
	}
	n, err := t.store.DeleteWhere(ctx, t.table, f)
	if err != nil {
		return domain.TaskResult{Errors: 1}, fmt.Errorf("%s: %w", t.name, err)
	}
	return domain.TaskResult{Deleted: n}, nil
}

// ArchiveTask copies old rows into an archive table, then deletes the
// originals. When the copy fails the delete is skipped, so rows are never
// lost; the next run picks them up again.
type ArchiveTask struct {
	name     string
	schedule string
	store    Store
	table    string
	archive  string
	column   string
	maxAge   time.Duration
	now      func() time.Time
}

func NewArchiveTask(name, schedule string, store Store, table, archive, column string, maxAge time.Duration) *ArchiveTask {
	return &ArchiveTask{
		name:     name,
		schedule: schedule,
		store:    store,
		table:    table,
		archive:  archive,
		column:   column,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

func (t *ArchiveTask) Name() string     { return t.name }
func (t *ArchiveTask) Schedule() string { return t.schedule }

func (t *ArchiveTask) Run(ctx context.Context, dryRun bool) (domain.TaskResult, error) {
	f := Filter{Column: t.column, Before: t.now().UTC().Add(-t.maxAge)}
	if dryRun {
		n, err := t.store.CountWhere(ctx, t.table, f)
		if err != nil {
			return domain.TaskResult{Errors: 1}, fmt.Errorf("%s: %w", t.name, err)
		}
		return domain.TaskResult{Archived: n, Deleted: n}, nil
	}

	archived, err := t.store.CopyWhere(ctx, t.table, t.archive, f)
	if err != nil {
		return domain.TaskResult{Errors: 1}, fmt.Errorf("%s: archive: %w", t.name, err)
	}
	deleted, err := t.store.DeleteWhere(ctx, t.table, f)
	if err != nil {
		return domain.TaskResult{Archived: archived, Errors: 1}, fmt.Errorf("%s: delete after archive: %w", t.name, err)
	}
	return domain.TaskResult{Archived: archived, Deleted: deleted}, nil
}

// FinishedJobStore is the job-repository slice the purge task needs.
type FinishedJobStore interface {
	CountPurgeable(ctx context.Context, cutoff, now time.Time) (int64, error)
	PurgeFinished(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// JobPurgeTask removes finished jobs past their retention. It goes through
// the job repository rather than a raw table sweep so per-job retention
// overrides are honored.
type JobPurgeTask struct {
	schedule  string
	jobs      FinishedJobStore
	retention time.Duration
	now       func() time.Time
}

func NewJobPurgeTask(schedule string, jobs FinishedJobStore, retention time.Duration) *JobPurgeTask {
	return &JobPurgeTask{schedule: schedule, jobs: jobs, retention: retention, now: time.Now}
}

func (t *JobPurgeTask) Name() string     { return "finished-job-purge" }
func (t *JobPurgeTask) Schedule() string { return t.schedule }

func (t *JobPurgeTask) Run(ctx context.Context, dryRun bool) (domain.TaskResult, error) {
	now := t.now().UTC()
	cutoff := now.Add(-t.retention)
	if dryRun {
		n, err := t.jobs.CountPurgeable(ctx, cutoff, now)
		if err != nil {
			return domain.TaskResult{Errors: 1}, fmt.Errorf("finished-job-purge: %w", err)
		}
		return domain.TaskResult{Deleted: n}, nil
	}
	n, err := t.jobs.PurgeFinished(ctx, cutoff, now)
	if err != nil {
		return domain.TaskResult{Errors: 1}, fmt.Errorf("finished-job-purge: %w", err)
	}
	return domain.TaskResult{Deleted: n}, nil
}
