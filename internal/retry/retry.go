// Package retry provides the single attempt-with-policy primitive every
// pipeline stage uses: a bounded number of attempts separated by a fixed
// delay, each optionally bounded by its own timeout.
package retry

import (
	"context"
	"errors"
	"time"

	"weatherflow/internal/services"
)

// Policy bounds how often an operation is attempted.
type Policy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

// Seconds builds a policy from the integer second values used in configuration.
func Seconds(attempts, delaySeconds, timeoutSeconds int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		Delay:          time.Duration(delaySeconds) * time.Second,
		AttemptTimeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// Func is one attempt. attempt is 1-based.
type Func func(ctx context.Context, attempt int) error

// Observer is notified after every failed attempt that will be retried.
type Observer func(attempt int, err error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options tune Do for callers and tests.
type Options struct {
	OnRetry Observer
	Sleep   Sleeper
}

// ErrPermanent marks an attempt error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }

func (e permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent stops the loop after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent or configuration error,
// ctx is cancelled, or the policy budget is exhausted. It returns the number
// of attempts consumed and the last error.
func Do(ctx context.Context, policy Policy, fn Func) (int, error) {
	return DoWith(ctx, policy, Options{}, fn)
}

// DoWith is Do with an observer and injectable sleep.
func DoWith(ctx context.Context, policy Policy, opts Options, fn Func) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		lastErr = runAttempt(ctx, policy.AttemptTimeout, attempt, fn)
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, ErrPermanent) || services.IsConfiguration(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}
		if err := sleep(ctx, policy.Delay); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, fn Func) error {
	if timeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}

// Sleep waits for d, returning early with ctx's error when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
