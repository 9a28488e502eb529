package domain

import (
	"encoding/json"
	"time"
)

// Priority controls queue ordering. Critical is processed first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// State tracks the lifecycle of a job. Completed and a failed job with no
// attempts remaining are the only terminal states; a failed job that still
// has attempts left re-enters waiting once its backoff delay elapses.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

func (s State) IsValid() bool {
	switch s {
	case StateWaiting, StateActive, StateCompleted, StateFailed, StateDelayed:
		return true
	}
	return false
}

// IsFinished reports whether the state is one the purge policy may remove.
func (s State) IsFinished() bool {
	return s == StateCompleted || s == StateFailed
}

// BackoffKind selects how the retry delay grows between failed attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

func (k BackoffKind) IsValid() bool {
	return k == BackoffFixed || k == BackoffExponential
}

// BackoffPolicy describes the delay applied before a failed job is retried.
type BackoffPolicy struct {
	Kind BackoffKind   `json:"kind"`
	Base time.Duration `json:"base"`
}

// Delay returns the wait before the next attempt, given how many attempts
// have already failed. Exponential doubles per failure:
//
//	failure 1 → base, failure 2 → 2×base, failure 3 → 4×base, ...
func (b BackoffPolicy) Delay(attemptsMade int) time.Duration {
	if b.Kind != BackoffExponential {
		return b.Base
	}
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	return b.Base << (attemptsMade - 1)
}

// Stage is a progress checkpoint reported by the worker while executing a
// job, so external monitoring can observe partial progress.
type Stage string

const (
	StageReceived           Stage = "received"
	StageDependencyAcquired Stage = "dependency_acquired"
	StageTransportCalled    Stage = "transport_called"
	StageDone               Stage = "done"
)

// Job is the unit of background work. State transitions are owned exclusively
// by the queue/worker pair; producers never mutate a job after enqueueing it.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     Priority        `json:"priority"`
	State        State           `json:"state"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Backoff      BackoffPolicy   `json:"backoff"`
	DedupeKey    *string         `json:"dedupe_key,omitempty"`
	Stage        Stage           `json:"stage,omitempty"`

	// RetentionOnComplete / RetentionOnFail override the global purge window
	// for this job once finished. Nil means the purge caller's cutoff applies.
	RetentionOnComplete *time.Duration `json:"retention_on_complete,omitempty"`
	RetentionOnFail     *time.Duration `json:"retention_on_fail,omitempty"`

	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	LastError    *string         `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AttemptsExhausted reports whether the job has reached its attempt ceiling.
func (j *Job) AttemptsExhausted() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

// TaskResult is the outcome of a single maintenance task invocation. It is
// never persisted; the composite runner aggregates and logs it.
type TaskResult struct {
	Deleted  int64 `json:"deleted"`
	Archived int64 `json:"archived"`
	Errors   int   `json:"errors"`
}

// Add accumulates another task's result into this one.
func (r *TaskResult) Add(other TaskResult) {
	r.Deleted += other.Deleted
	r.Archived += other.Archived
	r.Errors += other.Errors
}
