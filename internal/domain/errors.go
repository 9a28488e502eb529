package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// HTTP handlers translate these to status codes via a single mapError function.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateKey   = errors.New("dedupe key already taken")
	ErrQueueFull      = errors.New("queue is at capacity, try again later")
	ErrUnknownJobType = errors.New("no handler registered for job type")
	ErrUnknownTask    = errors.New("unknown maintenance task")
	ErrDuplicateTask  = errors.New("maintenance task already registered")
	ErrInvalidCron    = errors.New("invalid cron expression")
)

// ValidationError reports bad enqueue input. It is surfaced synchronously to
// the producer and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// terminalError marks a handler failure as not retryable. The queue skips the
// remaining backoff attempts and fails the job immediately.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return "terminal: " + e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so the retry machinery treats it as a permanent failure,
// e.g. a malformed payload detected mid-handler.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err was marked with Terminal.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}

// TaskError wraps a maintenance task failure with the task's name so the
// composite runner can log and count it without aborting the remaining tasks.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }
