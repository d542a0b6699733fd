// Package limiter bounds the number of simultaneous in-flight operations per
// entity-type. Each entity-type gets its own weighted semaphore, so a burst
// against one busy entity cannot starve the others.
package limiter

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/allisson/autoapi/internal/errors"
)

// Limiter admits operations per entity-type up to a configured maximum,
// queueing excess demand. Safe for concurrent use.
type Limiter struct {
	defaultMax     int64
	acquireTimeout time.Duration

	mu   sync.RWMutex
	sems map[string]*semaphore.Weighted
}

// New creates a limiter.
//
// defaultMax is the concurrency cap for entity-types registered without an
// explicit maximum; zero or negative falls back to the number of available
// processing units. acquireTimeout bounds how long Acquire waits for a free
// slot; zero means wait until the caller's context is done.
func New(defaultMax int, acquireTimeout time.Duration) *Limiter {
	if defaultMax <= 0 {
		defaultMax = runtime.GOMAXPROCS(0)
	}
	return &Limiter{
		defaultMax:     int64(defaultMax),
		acquireTimeout: acquireTimeout,
		sems:           make(map[string]*semaphore.Weighted),
	}
}

// Register configures the concurrency cap for an entity-type. Zero or
// negative max uses the limiter default. Registering an already-registered
// entity-type is a no-op: in-flight holders keep their slots.
func (l *Limiter) Register(entityType string, max int) {
	limit := int64(max)
	if limit <= 0 {
		limit = l.defaultMax
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.sems[entityType]; exists {
		return
	}
	l.sems[entityType] = semaphore.NewWeighted(limit)
}

// sem returns the semaphore for the entity-type, creating one with the
// default cap for entity-types never registered explicitly.
func (l *Limiter) sem(entityType string) *semaphore.Weighted {
	l.mu.RLock()
	s, ok := l.sems[entityType]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.sems[entityType]; ok {
		return s
	}
	s = semaphore.NewWeighted(l.defaultMax)
	l.sems[entityType] = s
	return s
}

// Acquire blocks until a slot for the entity-type is available, the
// configured acquire timeout elapses, or ctx is done. On success it returns
// a release function that must be called on every exit path; extra calls are
// no-ops, so the slot can never be released twice.
//
// A wait cancelled before admission consumes no slot. Timeout expiry maps to
// ErrCapacityExceeded; caller cancellation is reported as the context error.
func (l *Limiter) Acquire(ctx context.Context, entityType string) (release func(), err error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if l.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	s := l.sem(entityType)
	if err := s.Acquire(acquireCtx, 1); err != nil {
		// Distinguish the limiter's own timeout from caller cancellation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperrors.Wrapf(
				apperrors.ErrCapacityExceeded,
				"entity %q: no concurrency slot within %s",
				entityType, l.acquireTimeout,
			)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.Release(1)
		})
	}, nil
}

// TryAcquire admits the operation only if a slot is free right now.
// Returns a release function and true on success.
func (l *Limiter) TryAcquire(entityType string) (release func(), ok bool) {
	s := l.sem(entityType)
	if !s.TryAcquire(1) {
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.Release(1)
		})
	}, true
}
