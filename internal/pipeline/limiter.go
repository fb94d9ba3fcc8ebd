package pipeline

// limiter.go bounds concurrent prove/decode work.
//
// Full-image materialization is CPU- and memory-heavy, so the pipeline
// restricts parallel proves to a configurable maximum using a semaphore
// pattern. When all slots are occupied, callers wait up to maxWait
// before failing with ErrTooManyUploads. WaitForDrain supports graceful
// shutdown by blocking until in-flight proves complete.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when all prove slots are occupied and
// the wait timeout expires. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// DefaultMaxConcurrentProves is the default limit for parallel proves.
const DefaultMaxConcurrentProves = 4

// DefaultProveWaitTime is how long to wait for a slot before rejecting.
const DefaultProveWaitTime = 15 * time.Second

// ProveLimiter controls concurrent prove processing. It is a
// backpressure mechanism, not a correctness one: contexts are never
// shared between workers regardless.
type ProveLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewProveLimiter creates a limiter allowing at most maxConcurrent
// simultaneous proves. Requests that cannot acquire a slot within
// maxWait receive ErrTooManyUploads.
func NewProveLimiter(maxConcurrent int, maxWait time.Duration) *ProveLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentProves
	}
	if maxWait <= 0 {
		maxWait = DefaultProveWaitTime
	}

	return &ProveLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a prove slot. Returns nil on success,
// ErrTooManyUploads when the wait times out, or the context error when
// the caller gave up first. The caller MUST Release() on completion.
func (l *ProveLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *ProveLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release releases a previously acquired slot. Must be called exactly
// once per successful Acquire/TryAcquire.
func (l *ProveLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of proves currently in flight.
func (l *ProveLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *ProveLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all in-flight proves complete or the
// context is cancelled. Used for graceful shutdown.
func (l *ProveLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a snapshot of the limiter's state for monitoring.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ProveLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
