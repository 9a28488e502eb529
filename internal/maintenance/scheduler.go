package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// Scheduler drives registered tasks on their cron schedules. A task that
// is still running when its schedule fires again is skipped for that
// firing rather than doubled up.
type Scheduler struct {
	runner *Runner
	cron   *cron.Cron
	logger *zap.Logger
}

func NewScheduler(runner *Runner, logger *zap.Logger) *Scheduler {
	cronLog := &schedLogger{logger: logger.Named("cron").Sugar()}
	return &Scheduler{
		runner: runner,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
	}
}

// AddTask schedules one registered task under its own cron expression.
func (s *Scheduler) AddTask(t Task) error {
	if _, err := cron.ParseStandard(t.Schedule()); err != nil {
		return fmt.Errorf("%w: task %q: %v", domain.ErrInvalidCron, t.Name(), err)
	}
	name := t.Name()
	_, err := s.cron.AddFunc(t.Schedule(), func() {
		if _, err := s.runner.RunTask(context.Background(), name, false); err != nil {
			s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
		}
	})
	return err
}

// AddSweep schedules a full RunAll pass, used for the comprehensive
// cleanup window on top of the per-task schedules.
func (s *Scheduler) AddSweep(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidCron, err)
	}
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.runner.RunAll(context.Background(), false); err != nil {
			s.logger.Error("maintenance sweep aborted", zap.Error(err))
		}
	})
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for in-flight task runs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type schedLogger struct {
	logger *zap.SugaredLogger
}

func (l *schedLogger) Info(msg string, kv ...any)             { l.logger.Debugw(msg, kv...) }
func (l *schedLogger) Error(err error, msg string, kv ...any) { l.logger.Errorw(msg, append(kv, "error", err)...) }
