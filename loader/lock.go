// Package loader guards exclusive resources such as scene files. Waiting is
// bounded: a caller that cannot get the lock in time gets a TimeoutError it
// is expected to retry later.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout matches every TimeoutError with errors.Is.
var ErrTimeout = errors.New("lock acquisition timed out")

// TimeoutError reports that a lock was still held when the wait expired.
type TimeoutError struct {
	Resource string
	Waited   time.Duration
	Holder   string // Who held the lock when the wait gave up, if known
}

func (e *TimeoutError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("%s: waited %s, held by %s: %v", e.Resource, e.Waited, e.Holder, ErrTimeout)
	}
	return fmt.Sprintf("%s: waited %s: %v", e.Resource, e.Waited, ErrTimeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Retryable is always true; the holder will eventually release.
func (e *TimeoutError) Retryable() bool { return true }

// IsRetryable reports whether err, or anything it wraps, says it is worth
// retrying.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// Lock is an exclusive lock with bounded waits.
type Lock struct {
	name   string
	sem    *semaphore.Weighted
	mu     sync.Mutex
	holder string
}

func NewLock(name string) *Lock {
	return &Lock{name: name, sem: semaphore.NewWeighted(1)}
}

func (l *Lock) Name() string { return l.name }

// Acquire waits up to timeout for the lock. who is recorded for diagnostics.
// The returned release func is safe to call more than once.
func (l *Lock) Acquire(ctx context.Context, who string, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", l.name, err)
	}
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", l.name, ctx.Err())
		}
		return nil, &TimeoutError{Resource: l.name, Waited: time.Since(start), Holder: l.currentHolder()}
	}
	return l.claim(who), nil
}

// TryAcquire takes the lock only if it is free right now.
func (l *Lock) TryAcquire(who string) (func(), bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return l.claim(who), true
}

func (l *Lock) claim(who string) func() {
	l.mu.Lock()
	l.holder = who
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holder = ""
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}
}

func (l *Lock) currentHolder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// With runs fn while holding l.
func With(ctx context.Context, l *Lock, who string, timeout time.Duration, fn func() error) error {
	release, err := l.Acquire(ctx, who, timeout)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Retry calls With until it succeeds, fails with a non-retryable error, or
// attempts run out. backoff is slept between attempts.
func Retry(ctx context.Context, l *Lock, who string, timeout time.Duration, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = With(ctx, l, who, timeout, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", l.name, ctx.Err())
		}
	}
	return err
}
