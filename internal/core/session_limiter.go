package core

// session_limiter.go implements concurrency control for upload sessions.
//
// The limiter uses a semaphore pattern to restrict parallel sessions to a
// configurable maximum. The destination API rate limit is shared across all
// sessions, so running many at once only trades throughput for 429 churn.
// When all slots are occupied, new requests wait up to maxWait before
// failing with ErrTooManySessions.
//
// The limiter also supports graceful shutdown via WaitForDrain, which
// blocks until all active sessions complete.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManySessions is returned when all session slots are occupied and
// the wait timeout expires. Clients should retry after a short delay.
var ErrTooManySessions = errors.New("too many concurrent upload sessions, please try again later")

// DefaultMaxConcurrentSessions is the default limit for parallel sessions.
const DefaultMaxConcurrentSessions = 3

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// SessionLimiter controls concurrent session processing using a semaphore
// pattern.
type SessionLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewSessionLimiter creates a limiter that allows at most maxConcurrent
// simultaneous sessions. Requests that cannot acquire a slot within
// maxWait receive ErrTooManySessions.
func NewSessionLimiter(maxConcurrent int, maxWait time.Duration) *SessionLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &SessionLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a session slot.
// Returns nil on success, ErrTooManySessions if the timeout expires.
// The caller MUST call Release() when the session completes (use defer).
func (l *SessionLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from slot timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManySessions
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *SessionLimiter) TryAcquire() bool {
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

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *SessionLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently active sessions.
func (l *SessionLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent sessions.
func (l *SessionLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of available slots.
func (l *SessionLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active sessions complete or the context is
// cancelled. Used for graceful shutdown.
func (l *SessionLimiter) WaitForDrain(ctx context.Context) error {
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

// LimiterStatus is a snapshot of the limiter's current state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *SessionLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
