package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// MetricHooks lets the runner report sweep outcomes without depending on
// the metrics package.
type MetricHooks struct {
	OnDeleted func(task string, n int64)
	OnError   func(task string)
}

// Runner owns the registered maintenance tasks and executes them on
// demand, one task failing never prevents the rest from running.
type Runner struct {
	mu     sync.RWMutex
	tasks  map[string]Task
	order  []string
	logger *zap.Logger
	hooks  MetricHooks
}

func NewRunner(logger *zap.Logger, hooks MetricHooks) *Runner {
	return &Runner{
		tasks:  make(map[string]Task),
		logger: logger,
		hooks:  hooks,
	}
}

// Register adds a task. Task names are unique; registering a name twice
// returns ErrDuplicateTask.
func (r *Runner) Register(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.Name()]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateTask, t.Name())
	}
	r.tasks[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// TaskNames returns the registered task names in registration order.
func (r *Runner) TaskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// RunTask executes one task by name.
func (r *Runner) RunTask(ctx context.Context, name string, dryRun bool) (domain.TaskResult, error) {
	r.mu.RLock()
	t, ok := r.tasks[name]
	r.mu.RUnlock()
	if !ok {
		return domain.TaskResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownTask, name)
	}
	return r.runOne(ctx, t, dryRun)
}

// RunAll executes every registered task sequentially and returns the
// aggregate. A failing or panicking task contributes to Errors and the
// sweep continues; the method itself only errs on a cancelled context.
func (r *Runner) RunAll(ctx context.Context, dryRun bool) (domain.TaskResult, error) {
	started := time.Now()
	var total domain.TaskResult
	for _, name := range r.TaskNames() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		r.mu.RLock()
		t := r.tasks[name]
		r.mu.RUnlock()

		res, err := r.runOne(ctx, t, dryRun)
		total.Add(res)
		if err != nil {
			r.logger.Error("maintenance task failed",
				zap.String("task", name), zap.Bool("dry_run", dryRun), zap.Error(err))
		}
	}
	r.logger.Info("maintenance sweep finished",
		zap.Bool("dry_run", dryRun),
		zap.Int64("deleted", total.Deleted),
		zap.Int64("archived", total.Archived),
		zap.Int("errors", total.Errors),
		zap.Duration("took", time.Since(started)))
	return total, nil
}

func (r *Runner) runOne(ctx context.Context, t Task, dryRun bool) (res domain.TaskResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = domain.TaskResult{Errors: 1}
			err = &domain.TaskError{Task: t.Name(), Err: fmt.Errorf("panic: %v", rec)}
		}
		if err != nil && r.hooks.OnError != nil {
			r.hooks.OnError(t.Name())
		}
		if err == nil && !dryRun && r.hooks.OnDeleted != nil {
			r.hooks.OnDeleted(t.Name(), res.Deleted)
		}
	}()

	res, err = t.Run(ctx, dryRun)
	if err != nil {
		if res.Errors == 0 {
			res.Errors = 1
		}
		return res, &domain.TaskError{Task: t.Name(), Err: err}
	}
	r.logger.Debug("maintenance task finished",
		zap.String("task", t.Name()),
		zap.Bool("dry_run", dryRun),
		zap.Int64("deleted", res.Deleted),
		zap.Int64("archived", res.Archived))
	return res, nil
}
