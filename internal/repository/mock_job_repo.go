package repository

import (
	"context"
	"sync"
	"time"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// MockJobRepository is a hand-written, in-memory implementation of
// JobRepository used in unit tests. No mock-generation library needed.
type MockJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job

	// Optional error overrides — set in tests to simulate failure paths.
	CreateErr  error
	GetByIDErr error
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{jobs: make(map[string]*domain.Job)}
}

func (m *MockJobRepository) Create(_ context.Context, j *domain.Job) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror the partial unique index on dedupe_key.
	if j.DedupeKey != nil {
		for _, existing := range m.jobs {
			if existing.DedupeKey != nil && *existing.DedupeKey == *j.DedupeKey {
				return domain.ErrDuplicateKey
			}
		}
	}
	clone := *j
	m.jobs[j.ID] = &clone
	return nil
}

func (m *MockJobRepository) GetByID(_ context.Context, id string) (*domain.Job, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (m *MockJobRepository) GetByDedupeKey(_ context.Context, key string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.jobs {
		if j.DedupeKey != nil && *j.DedupeKey == key {
			clone := *j
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockJobRepository) MarkActive(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != domain.StateWaiting {
		return domain.ErrNotFound
	}
	j.State = domain.StateActive
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockJobRepository) MarkCompleted(_ context.Context, id string, finishedAt time.Time) error {
	return m.update(id, func(j *domain.Job) {
		j.State = domain.StateCompleted
		j.Stage = domain.StageDone
		j.FinishedAt = &finishedAt
		j.LastError = nil
		j.NextRetryAt = nil
	})
}

func (m *MockJobRepository) MarkFailed(_ context.Context, id string, attemptsMade int, errMsg string, finishedAt time.Time) error {
	return m.update(id, func(j *domain.Job) {
		j.State = domain.StateFailed
		j.AttemptsMade = attemptsMade
		j.LastError = &errMsg
		j.FinishedAt = &finishedAt
		j.NextRetryAt = nil
	})
}

func (m *MockJobRepository) ScheduleRetry(_ context.Context, id string, attemptsMade int, nextRetryAt time.Time, errMsg string) error {
	return m.update(id, func(j *domain.Job) {
		j.State = domain.StateFailed
		j.AttemptsMade = attemptsMade
		j.NextRetryAt = &nextRetryAt
		j.LastError = &errMsg
	})
}

func (m *MockJobRepository) ResetForRetry(_ context.Context, id string) error {
	return m.update(id, func(j *domain.Job) {
		j.State = domain.StateWaiting
		j.NextRetryAt = nil
	})
}

func (m *MockJobRepository) Park(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(j *domain.Job) {
		j.State = domain.StateDelayed
		j.ScheduledAt = &at
	})
}

func (m *MockJobRepository) UpdateState(_ context.Context, id string, state domain.State) error {
	return m.update(id, func(j *domain.Job) {
		j.State = state
	})
}

func (m *MockJobRepository) UpdateStage(_ context.Context, id string, stage domain.Stage) error {
	return m.update(id, func(j *domain.Job) {
		j.Stage = stage
	})
}

func (m *MockJobRepository) FindDueRetries(_ context.Context, now time.Time) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.Job
	for _, j := range m.jobs {
		if j.State == domain.StateFailed && j.AttemptsMade < j.MaxAttempts &&
			j.NextRetryAt != nil && !j.NextRetryAt.After(now) {
			clone := *j
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (m *MockJobRepository) FindDueDelayed(_ context.Context, now time.Time) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.Job
	for _, j := range m.jobs {
		if j.State == domain.StateDelayed && j.ScheduledAt != nil && !j.ScheduledAt.After(now) {
			clone := *j
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (m *MockJobRepository) ListRetryable(_ context.Context, typeFilter string) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Job
	for _, j := range m.jobs {
		if j.State != domain.StateFailed || j.AttemptsMade >= j.MaxAttempts {
			continue
		}
		if typeFilter != "" && j.Type != typeFilter {
			continue
		}
		clone := *j
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MockJobRepository) PurgeFinished(_ context.Context, cutoff, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, j := range m.jobs {
		if !j.State.IsFinished() || j.FinishedAt == nil {
			continue
		}
		deadline := cutoff
		if j.State == domain.StateCompleted && j.RetentionOnComplete != nil {
			deadline = now.Add(-*j.RetentionOnComplete)
		}
		if j.State == domain.StateFailed && j.RetentionOnFail != nil {
			deadline = now.Add(-*j.RetentionOnFail)
		}
		if j.FinishedAt.Before(deadline) {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MockJobRepository) CountPurgeable(_ context.Context, cutoff, now time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, j := range m.jobs {
		if !j.State.IsFinished() || j.FinishedAt == nil {
			continue
		}
		deadline := cutoff
		if j.State == domain.StateCompleted && j.RetentionOnComplete != nil {
			deadline = now.Add(-*j.RetentionOnComplete)
		}
		if j.State == domain.StateFailed && j.RetentionOnFail != nil {
			deadline = now.Add(-*j.RetentionOnFail)
		}
		if j.FinishedAt.Before(deadline) {
			n++
		}
	}
	return n, nil
}

// Len reports how many jobs the mock currently holds.
func (m *MockJobRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// All returns a snapshot of every stored job, for test assertions.
func (m *MockJobRepository) All() []*domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		clone := *j
		result = append(result, &clone)
	}
	return result
}

func (m *MockJobRepository) update(id string, fn func(*domain.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		fn(j)
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

var _ JobRepository = (*MockJobRepository)(nil)
