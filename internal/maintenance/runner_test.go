package maintenance_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/maintenance"
)

type fakeTask struct {
	name   string
	result domain.TaskResult
	err    error
	panics bool
	runs   int
}

func (f *fakeTask) Name() string     { return f.name }
func (f *fakeTask) Schedule() string { return "0 3 * * *" }

func (f *fakeTask) Run(_ context.Context, _ bool) (domain.TaskResult, error) {
	f.runs++
	if f.panics {
		panic("nil table handle")
	}
	return f.result, f.err
}

func TestRunner_RegisterRejectsDuplicates(t *testing.T) {
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{})
	if err := r.Register(&fakeTask{name: "sweep"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&fakeTask{name: "sweep"}); !errors.Is(err, domain.ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestRunner_RunTaskUnknownName(t *testing.T) {
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{})
	_, err := r.RunTask(context.Background(), "no-such-task", false)
	if !errors.Is(err, domain.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

// A failing task contributes to the aggregate error count but never stops
// the tasks registered after it.
func TestRunner_RunAllIsolatesFailures(t *testing.T) {
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{})
	a := &fakeTask{name: "a", result: domain.TaskResult{Deleted: 12}}
	b := &fakeTask{name: "b", err: errors.New("lock timeout")}
	c := &fakeTask{name: "c", result: domain.TaskResult{Deleted: 8}}
	for _, task := range []*fakeTask{a, b, c} {
		if err := r.Register(task); err != nil {
			t.Fatal(err)
		}
	}

	total, err := r.RunAll(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if a.runs != 1 || b.runs != 1 || c.runs != 1 {
		t.Fatalf("every task must run exactly once: %d/%d/%d", a.runs, b.runs, c.runs)
	}
	if total.Deleted != 20 || total.Errors != 1 {
		t.Fatalf("expected aggregate {deleted:20, errors:1}, got %+v", total)
	}
}

func TestRunner_RunAllRecoversPanics(t *testing.T) {
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{})
	_ = r.Register(&fakeTask{name: "explodes", panics: true})
	after := &fakeTask{name: "after", result: domain.TaskResult{Deleted: 3}}
	_ = r.Register(after)

	total, err := r.RunAll(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if after.runs != 1 {
		t.Fatal("task after a panicking one must still run")
	}
	if total.Errors != 1 || total.Deleted != 3 {
		t.Fatalf("expected {deleted:3, errors:1}, got %+v", total)
	}
}

func TestRunner_RunTaskWrapsErrorWithTaskName(t *testing.T) {
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{})
	cause := errors.New("disk full")
	_ = r.Register(&fakeTask{name: "log-archive", err: cause})

	_, err := r.RunTask(context.Background(), "log-archive", false)
	var te *domain.TaskError
	if !errors.As(err, &te) || te.Task != "log-archive" || !errors.Is(err, cause) {
		t.Fatalf("expected TaskError for log-archive wrapping cause, got %v", err)
	}
}

func TestRunner_MetricHooks(t *testing.T) {
	deleted := map[string]int64{}
	failed := map[string]int{}
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{
		OnDeleted: func(task string, n int64) { deleted[task] += n },
		OnError:   func(task string) { failed[task]++ },
	})
	_ = r.Register(&fakeTask{name: "ok", result: domain.TaskResult{Deleted: 7}})
	_ = r.Register(&fakeTask{name: "bad", err: errors.New("boom")})

	if _, err := r.RunAll(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if deleted["ok"] != 7 || failed["bad"] != 1 {
		t.Fatalf("hooks not fired as expected: %v %v", deleted, failed)
	}
}

// Dry runs report without firing the deletion hook.
func TestRunner_DryRunSkipsDeletedHook(t *testing.T) {
	fired := false
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{
		OnDeleted: func(string, int64) { fired = true },
	})
	_ = r.Register(&fakeTask{name: "ok", result: domain.TaskResult{Deleted: 7}})

	total, err := r.RunAll(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if total.Deleted != 7 {
		t.Fatalf("dry run must still report counts, got %+v", total)
	}
	if fired {
		t.Fatal("dry run must not report deletions to metrics")
	}
}

func TestRunner_RunAllStopsOnCancelledContext(t *testing.T) {
	r := maintenance.NewRunner(zap.NewNop(), maintenance.MetricHooks{})
	task := &fakeTask{name: "never"}
	_ = r.Register(task)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunAll(ctx, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if task.runs != 0 {
		t.Fatal("no task should run under a cancelled context")
	}
}
