package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// JobLimiters holds one token bucket limiter per job type, created on first
// use. Each limiter enforces a steady-state rate (e.g. 100 executions/sec).
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type JobLimiters struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	ratePerSec int
}

// New creates a JobLimiters with ratePerSec executions per second per job type.
func New(ratePerSec int) *JobLimiters {
	return &JobLimiters{
		limiters:   make(map[string]*rate.Limiter),
		ratePerSec: ratePerSec,
	}
}

// Wait blocks until the job type's limiter grants a token.
// Called by each worker immediately before executing a handler.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (jl *JobLimiters) Wait(ctx context.Context, jobType string) error {
	return jl.limiterFor(jobType).Wait(ctx)
}

func (jl *JobLimiters) limiterFor(jobType string) *rate.Limiter {
	jl.mu.Lock()
	defer jl.mu.Unlock()
	l, ok := jl.limiters[jobType]
	if !ok {
		// burst == rate: prevents any "saved up" burst above the limit
		l = rate.NewLimiter(rate.Limit(jl.ratePerSec), jl.ratePerSec)
		jl.limiters[jobType] = l
	}
	return l
}
