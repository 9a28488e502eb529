package queue_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
)

func newQueue() (*queue.Queue, *repository.MockJobRepository, *queue.PriorityQueue) {
	repo := repository.NewMockJobRepository()
	pq := queue.New()
	q := queue.NewService(repo, pq, queue.Defaults{}, zap.NewNop())
	return q, repo, pq
}

func TestQueue_Enqueue_Defaults(t *testing.T) {
	q, repo, pq := newQueue()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "notification.send", map[string]string{"to": "a@b.c"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if j.Priority != domain.PriorityNormal {
		t.Fatalf("expected default priority normal, got %s", j.Priority)
	}
	if j.MaxAttempts != 3 {
		t.Fatalf("expected default maxAttempts=3, got %d", j.MaxAttempts)
	}
	if j.Backoff.Kind != domain.BackoffExponential || j.Backoff.Base != 5*time.Second {
		t.Fatalf("expected exponential(5s) backoff, got %+v", j.Backoff)
	}
	if j.State != domain.StateWaiting {
		t.Fatalf("expected state waiting, got %s", j.State)
	}

	c, h, n, l := pq.Depths()
	if c+h+n+l != 1 {
		t.Fatal("expected item to be dispatched")
	}
}

func TestQueue_Enqueue_EmptyTypeRejected(t *testing.T) {
	q, _, _ := newQueue()

	_, err := q.Enqueue(context.Background(), "  ", nil, nil)
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestQueue_Enqueue_UnserializablePayloadRejected(t *testing.T) {
	q, _, _ := newQueue()

	_, err := q.Enqueue(context.Background(), "notification.send", make(chan int), nil)
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Non-finite floats are not valid JSON either.
	_, err = q.Enqueue(context.Background(), "notification.send", math.Inf(1), nil)
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError for Inf payload, got %v", err)
	}
}

func TestQueue_Enqueue_DedupeKeyShortCircuits(t *testing.T) {
	q, repo, _ := newQueue()
	ctx := context.Background()

	opts := &queue.Options{DedupeKey: "evt-1:a@b.c"}
	first, err := q.Enqueue(ctx, "notification.send", nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := q.Enqueue(ctx, "notification.send", nil, opts)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Fatalf("expected dedupe to return existing job id: %s vs %s", first, second)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected exactly one persisted job, got %d", repo.Len())
	}
}

// blindRepo misses its first dedupe lookup, simulating a concurrent producer
// whose insert lands between this producer's lookup and its create.
type blindRepo struct {
	*repository.MockJobRepository
	missed bool
}

func (r *blindRepo) GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error) {
	if !r.missed {
		r.missed = true
		return nil, domain.ErrNotFound
	}
	return r.MockJobRepository.GetByDedupeKey(ctx, key)
}

// TestQueue_Enqueue_DedupeInsertRaceReturnsWinner verifies the loser of a
// concurrent same-key enqueue gets the winner's job id instead of a unique
// constraint error.
func TestQueue_Enqueue_DedupeInsertRaceReturnsWinner(t *testing.T) {
	mock := repository.NewMockJobRepository()
	pq := queue.New()
	q := queue.NewService(&blindRepo{MockJobRepository: mock}, pq, queue.Defaults{}, zap.NewNop())
	ctx := context.Background()

	key := "evt-9:a@b.c"
	winner := &domain.Job{
		ID:        "winner",
		Type:      "notification.send",
		Priority:  domain.PriorityNormal,
		State:     domain.StateWaiting,
		DedupeKey: &key,
	}
	if err := mock.Create(ctx, winner); err != nil {
		t.Fatal(err)
	}

	id, err := q.Enqueue(ctx, "notification.send", nil, &queue.Options{DedupeKey: key})
	if err != nil {
		t.Fatalf("racing enqueue must not surface the constraint violation: %v", err)
	}
	if id != winner.ID {
		t.Fatalf("expected the winner's id %q, got %q", winner.ID, id)
	}
	if mock.Len() != 1 {
		t.Fatalf("expected exactly one persisted job, got %d", mock.Len())
	}
}

func TestQueue_Enqueue_DelayedJobIsNotDispatched(t *testing.T) {
	q, repo, pq := newQueue()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "notification.send", nil, &queue.Options{Delay: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	j, _ := repo.GetByID(ctx, id)
	if j.State != domain.StateDelayed {
		t.Fatalf("expected state delayed, got %s", j.State)
	}
	if j.ScheduledAt == nil {
		t.Fatal("expected scheduled_at to be set")
	}

	c, h, n, l := pq.Depths()
	if c+h+n+l != 0 {
		t.Fatal("delayed job must not hit the dispatch queue")
	}
}

func TestQueue_GetStatus_UnknownIDReturnsNil(t *testing.T) {
	q, _, _ := newQueue()

	j, err := q.GetStatus(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("GetStatus must not error on unknown id, got %v", err)
	}
	if j != nil {
		t.Fatal("expected nil status for unknown id")
	}
}

func TestQueue_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id is a no-op", func(t *testing.T) {
		q, _, _ := newQueue()
		if err := q.Cancel(ctx, "nope"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})

	t.Run("waiting job is cancelled", func(t *testing.T) {
		q, repo, _ := newQueue()
		id, _ := q.Enqueue(ctx, "notification.send", nil, nil)

		if err := q.Cancel(ctx, id); err != nil {
			t.Fatal(err)
		}
		j, _ := repo.GetByID(ctx, id)
		if j.State != domain.StateFailed {
			t.Fatalf("expected cancelled job to be failed, got %s", j.State)
		}
	})

	t.Run("completed job is left alone", func(t *testing.T) {
		q, repo, _ := newQueue()
		id, _ := q.Enqueue(ctx, "notification.send", nil, nil)
		_ = repo.MarkCompleted(ctx, id, time.Now().UTC())

		if err := q.Cancel(ctx, id); err != nil {
			t.Fatal(err)
		}
		j, _ := repo.GetByID(ctx, id)
		if j.State != domain.StateCompleted {
			t.Fatalf("cancel must not touch a completed job, got %s", j.State)
		}
	})

	t.Run("active job is not interrupted", func(t *testing.T) {
		q, repo, _ := newQueue()
		id, _ := q.Enqueue(ctx, "notification.send", nil, nil)
		_ = repo.MarkActive(ctx, id)

		if err := q.Cancel(ctx, id); err != nil {
			t.Fatal(err)
		}
		j, _ := repo.GetByID(ctx, id)
		if j.State != domain.StateActive {
			t.Fatalf("cancel must not touch an in-flight job, got %s", j.State)
		}
	})
}

// TestQueue_FailAttempt_BackoffSequence verifies the exponential schedule:
// base 5s gives retry delays of 5s, 10s, 20s for three consecutive failures.
func TestQueue_FailAttempt_BackoffSequence(t *testing.T) {
	q, repo, _ := newQueue()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "notification.send", nil, &queue.Options{MaxAttempts: 5})

	wantDelays := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i, want := range wantDelays {
		j, _ := repo.GetByID(ctx, id)
		before := time.Now().UTC()
		if err := q.FailAttempt(ctx, j, errTransient); err != nil {
			t.Fatal(err)
		}

		j, _ = repo.GetByID(ctx, id)
		if j.AttemptsMade != i+1 {
			t.Fatalf("failure %d: expected attemptsMade=%d, got %d", i+1, i+1, j.AttemptsMade)
		}
		if j.NextRetryAt == nil {
			t.Fatalf("failure %d: expected a retry to be scheduled", i+1)
		}
		delay := j.NextRetryAt.Sub(before)
		if delay < want-time.Second || delay > want+time.Second {
			t.Fatalf("failure %d: expected delay ≈%s, got %s", i+1, want, delay)
		}
	}
}

// TestQueue_FailAttempt_ExhaustionIsTerminal verifies that the final allowed
// attempt's failure marks the job failed for good and records a dead letter.
func TestQueue_FailAttempt_ExhaustionIsTerminal(t *testing.T) {
	q, repo, _ := newQueue()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "notification.send", nil, &queue.Options{MaxAttempts: 2})

	j, _ := repo.GetByID(ctx, id)
	_ = q.FailAttempt(ctx, j, errTransient) // attempt 1 of 2: retry scheduled

	j, _ = repo.GetByID(ctx, id)
	_ = q.FailAttempt(ctx, j, errTransient) // attempt 2 of 2: terminal

	j, _ = repo.GetByID(ctx, id)
	if j.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", j.State)
	}
	if j.AttemptsMade != j.MaxAttempts {
		t.Fatalf("attemptsMade (%d) must equal maxAttempts (%d)", j.AttemptsMade, j.MaxAttempts)
	}
	if j.FinishedAt == nil {
		t.Fatal("terminal failure must set finished_at")
	}
	if j.NextRetryAt != nil {
		t.Fatal("terminal failure must not schedule another retry")
	}

	if !hasJobOfType(repo, queue.DeadLetterJobType) {
		t.Fatal("expected a dead-letter record for the exhausted job")
	}
}

// TestQueue_FailAttempt_TerminalErrorSkipsRetries verifies a handler-declared
// permanent failure bypasses the remaining backoff attempts.
func TestQueue_FailAttempt_TerminalErrorSkipsRetries(t *testing.T) {
	q, repo, _ := newQueue()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "notification.send", nil, &queue.Options{MaxAttempts: 5})

	j, _ := repo.GetByID(ctx, id)
	_ = q.FailAttempt(ctx, j, domain.Terminal(errTransient))

	j, _ = repo.GetByID(ctx, id)
	if j.State != domain.StateFailed || j.NextRetryAt != nil {
		t.Fatalf("terminal error must fail immediately: state=%s nextRetry=%v", j.State, j.NextRetryAt)
	}
	if j.AttemptsMade != 1 {
		t.Fatalf("expected exactly one attempt recorded, got %d", j.AttemptsMade)
	}
}

// TestQueue_FailAttempt_DeadLetterDoesNotCascade verifies that an exhausted
// dead-letter job does not enqueue another dead letter.
func TestQueue_FailAttempt_DeadLetterDoesNotCascade(t *testing.T) {
	q, repo, _ := newQueue()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, queue.DeadLetterJobType, nil, &queue.Options{MaxAttempts: 1})

	j, _ := repo.GetByID(ctx, id)
	_ = q.FailAttempt(ctx, j, errTransient)

	if repo.Len() != 1 {
		t.Fatalf("expected no cascading dead letters, repo holds %d jobs", repo.Len())
	}
}

func TestQueue_RetryFailed(t *testing.T) {
	q, repo, pq := newQueue()
	ctx := context.Background()

	// One retryable failure and one exhausted job.
	retryableID, _ := q.Enqueue(ctx, "notification.send", nil, &queue.Options{MaxAttempts: 3})
	j, _ := repo.GetByID(ctx, retryableID)
	_ = q.FailAttempt(ctx, j, errTransient)

	exhaustedID, _ := q.Enqueue(ctx, "image.resize", nil, &queue.Options{MaxAttempts: 1})
	j, _ = repo.GetByID(ctx, exhaustedID)
	_ = q.FailAttempt(ctx, j, errTransient)

	drain(pq) // ignore items from the original enqueues

	count, err := q.RetryFailed(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 re-enqueued job, got %d", count)
	}

	j, _ = repo.GetByID(ctx, retryableID)
	if j.State != domain.StateWaiting {
		t.Fatalf("retried job should be waiting, got %s", j.State)
	}
	j, _ = repo.GetByID(ctx, exhaustedID)
	if j.State != domain.StateFailed {
		t.Fatalf("exhausted job must stay failed, got %s", j.State)
	}
}

func TestQueue_RetryFailed_TypeFilter(t *testing.T) {
	q, repo, pq := newQueue()
	ctx := context.Background()

	sendID, _ := q.Enqueue(ctx, "notification.send", nil, nil)
	j, _ := repo.GetByID(ctx, sendID)
	_ = q.FailAttempt(ctx, j, errTransient)

	resizeID, _ := q.Enqueue(ctx, "image.resize", nil, nil)
	j, _ = repo.GetByID(ctx, resizeID)
	_ = q.FailAttempt(ctx, j, errTransient)

	drain(pq)

	count, err := q.RetryFailed(ctx, "image.resize")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried job for the filtered type, got %d", count)
	}
	j, _ = repo.GetByID(ctx, sendID)
	if j.State != domain.StateFailed {
		t.Fatalf("non-matching type must be untouched, got %s", j.State)
	}
}

// TestQueue_PurgeCompleted verifies that the purge only ever removes finished
// jobs past the cutoff, never waiting/active/delayed ones regardless of age.
func TestQueue_PurgeCompleted(t *testing.T) {
	q, repo, _ := newQueue()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)

	seed := func(state domain.State, finished bool) string {
		id, _ := q.Enqueue(ctx, "notification.send", nil, nil)
		if finished {
			if state == domain.StateCompleted {
				_ = repo.MarkCompleted(ctx, id, old)
			} else {
				_ = repo.MarkFailed(ctx, id, 3, "boom", old)
			}
		} else {
			_ = repo.UpdateState(ctx, id, state)
		}
		return id
	}

	completedID := seed(domain.StateCompleted, true)
	failedID := seed(domain.StateFailed, true)
	waitingID := seed(domain.StateWaiting, false)
	activeID := seed(domain.StateActive, false)
	delayedID := seed(domain.StateDelayed, false)

	purged, err := q.PurgeCompleted(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged jobs, got %d", purged)
	}

	for _, id := range []string{completedID, failedID} {
		if _, err := repo.GetByID(ctx, id); err == nil {
			t.Fatalf("job %s should have been purged", id)
		}
	}
	for _, id := range []string{waitingID, activeID, delayedID} {
		if _, err := repo.GetByID(ctx, id); err != nil {
			t.Fatalf("unfinished job %s must never be purged", id)
		}
	}
}

// orderingRepo records the dispatch-queue depth at the moment ResetForRetry
// commits, to pin the redelivery ordering: the waiting state must be durable
// before the item is visible to any worker.
type orderingRepo struct {
	*repository.MockJobRepository
	pq           *queue.PriorityQueue
	depthAtReset int
}

func (r *orderingRepo) ResetForRetry(ctx context.Context, id string) error {
	c, h, n, l := r.pq.Depths()
	r.depthAtReset = c + h + n + l
	return r.MockJobRepository.ResetForRetry(ctx, id)
}

// TestQueue_ReEnqueue_CommitsStateBeforeDispatch guards against a race where
// a worker dequeues the item, still reads the job as failed, and drops it:
// the job would then sit in waiting with no channel entry and no poller
// covering that state.
func TestQueue_ReEnqueue_CommitsStateBeforeDispatch(t *testing.T) {
	mock := repository.NewMockJobRepository()
	pq := queue.New()
	repo := &orderingRepo{MockJobRepository: mock, pq: pq, depthAtReset: -1}
	q := queue.NewService(repo, pq, queue.Defaults{}, zap.NewNop())
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "notification.send", nil, nil)
	drain(pq)
	j, _ := mock.GetByID(ctx, id)
	_ = q.FailAttempt(ctx, j, errTransient)

	j, _ = mock.GetByID(ctx, id)
	if err := q.ReEnqueue(ctx, j); err != nil {
		t.Fatal(err)
	}

	if repo.depthAtReset != 0 {
		t.Fatalf("state must commit before dispatch; queue depth was %d at commit", repo.depthAtReset)
	}
	j, _ = mock.GetByID(ctx, id)
	if j.State != domain.StateWaiting {
		t.Fatalf("expected waiting after re-enqueue, got %s", j.State)
	}
	c, h, n, l := pq.Depths()
	if c+h+n+l != 1 {
		t.Fatal("expected the re-enqueued item on the dispatch queue")
	}
}

// TestQueue_ReEnqueue_FullQueueParksJobAsDue verifies that a saturated
// dispatch tier never strands a retried job: it is parked back as delayed
// with an immediately due scheduled_at, so the delayed poller picks it up.
func TestQueue_ReEnqueue_FullQueueParksJobAsDue(t *testing.T) {
	q, repo, pq := newQueue()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, "notification.send", nil, &queue.Options{Priority: domain.PriorityCritical})
	j, _ := repo.GetByID(ctx, id)
	_ = q.FailAttempt(ctx, j, errTransient)
	drain(pq)

	// Saturate the critical tier so re-dispatch has nowhere to go.
	for pq.Enqueue(queue.Item{JobID: "filler", Priority: domain.PriorityCritical}) == nil {
	}

	j, _ = repo.GetByID(ctx, id)
	err := q.ReEnqueue(ctx, j)
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	j, _ = repo.GetByID(ctx, id)
	if j.State != domain.StateDelayed {
		t.Fatalf("parked job must be delayed, got %s", j.State)
	}
	if j.ScheduledAt == nil || j.ScheduledAt.After(time.Now().UTC()) {
		t.Fatalf("parked job must be immediately due, scheduled_at=%v", j.ScheduledAt)
	}

	due, err := repo.FindDueDelayed(ctx, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range due {
		if d.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatal("parked job must be visible to the delayed poller")
	}
}

func TestQueue_ScheduleRecurring_InvalidCron(t *testing.T) {
	q, _, _ := newQueue()

	_, err := q.ScheduleRecurring("report.daily", "not a cron", nil)
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestQueue_ScheduleRecurring_RegistersAndCancels(t *testing.T) {
	q, _, _ := newQueue()

	id, err := q.ScheduleRecurring("report.daily", "0 4 * * *", map[string]string{"report": "sales"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a schedule id")
	}

	q.CancelRecurring(id)
	q.CancelRecurring(id) // idempotent
}

// ---- helpers ----

var errTransient = errOf("provider timeout")

type errOf string

func (e errOf) Error() string { return string(e) }

func hasJobOfType(repo *repository.MockJobRepository, jobType string) bool {
	for _, j := range repo.All() {
		if j.Type == jobType {
			return true
		}
	}
	return false
}

func drain(pq *queue.PriorityQueue) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for {
		if _, ok := pq.Dequeue(ctx); !ok {
			return
		}
	}
}
