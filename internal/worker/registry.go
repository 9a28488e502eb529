package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// ProgressFunc reports a checkpoint reached while executing a job.
type ProgressFunc func(stage domain.Stage)

// Handler executes one job type. Returning an error marks the attempt failed;
// wrapping the error with domain.Terminal skips the remaining retries.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job, progress ProgressFunc) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *domain.Job, progress ProgressFunc) error

func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job, progress ProgressFunc) error {
	return f(ctx, job, progress)
}

// DefaultTimeout bounds a single execution attempt when a handler does not
// declare its own limit.
const DefaultTimeout = 30 * time.Second

type registration struct {
	handler Handler
	timeout time.Duration
}

// Registry maps job types to their handlers. Registration happens once during
// startup; lookups are concurrent-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds a handler and its per-attempt timeout to a job type.
// A timeout of zero means DefaultTimeout. Re-registering a type is an error.
func (r *Registry) Register(jobType string, h Handler, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler for job type %q already registered", jobType)
	}
	r.handlers[jobType] = registration{handler: h, timeout: timeout}
	return nil
}

// Resolve returns the handler and timeout for a job type.
func (r *Registry) Resolve(jobType string) (Handler, time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[jobType]
	return reg.handler, reg.timeout, ok
}
