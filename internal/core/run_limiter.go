package core

// run_limiter.go serializes sync runs.
//
// The destination sheet has no locking primitive: two runs against it race
// between building the row index and placing appended rows. Every entry
// point (HTTP trigger, scheduler) takes a slot here before calling
// Syncer.Run. With the default of one slot runs execute strictly one after
// another; requests that cannot get a slot within maxWait fail with
// ErrRunInProgress.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when the limiter stays full for maxWait.
var ErrRunInProgress = errors.New("sync already running, please try again later")

// DefaultMaxConcurrentRuns is the default number of runs allowed at once.
const DefaultMaxConcurrentRuns = 1

// DefaultRunWaitTime is how long to wait for a slot before rejecting.
const DefaultRunWaitTime = 5 * time.Second

// RunLimiter controls concurrent sync runs using a semaphore.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu      sync.RWMutex
	active  int
	holders map[string]time.Time // job key -> start
}

// NewRunLimiter creates a limiter that allows at most maxConcurrent runs.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultRunWaitTime
	}

	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		holders:   make(map[string]time.Time),
	}
}

// Acquire waits for a slot for job.
// Returns nil on success, ErrRunInProgress if the wait expires.
// The caller MUST call Release(job) when the run completes (use defer).
func (l *RunLimiter) Acquire(ctx context.Context, job string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.hold(job)
		return nil

	case <-waitCtx.Done():
		// Check if original context was cancelled vs timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRunInProgress
	}
}

// TryAcquire takes a slot without blocking.
func (l *RunLimiter) TryAcquire(job string) bool {
	select {
	case l.semaphore <- struct{}{}:
		l.hold(job)
		return true
	default:
		return false
	}
}

func (l *RunLimiter) hold(job string) {
	l.mu.Lock()
	l.active++
	l.holders[job] = time.Now()
	l.mu.Unlock()
}

// Release frees the slot taken for job.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *RunLimiter) Release(job string) {
	l.mu.Lock()
	l.active--
	delete(l.holders, job)
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of runs in progress.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent runs.
func (l *RunLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all runs complete or ctx is cancelled.
// Used for graceful shutdown.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot of the limiter's state.
type RunLimiterStatus struct {
	Active        int                  `json:"active"`
	Available     int                  `json:"available"`
	MaxConcurrent int                  `json:"maxConcurrent"`
	Running       map[string]time.Time `json:"running,omitempty"`
}

// Status returns the current limiter state for the API.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	running := make(map[string]time.Time, len(l.holders))
	for k, v := range l.holders {
		running[k] = v
	}
	return RunLimiterStatus{
		Active:        l.active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
		Running:       running,
	}
}
