// Package retry implements the bounded exponential backoff used for
// transient provider failures.
//
// The policy is pure: it only decides whether another attempt is allowed
// and how long to wait before it. Degrading an exhausted call to an empty
// result is left to the caller.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts, first one included.
	DefaultMaxAttempts = 5
	// DefaultInitialDelay is the wait before the second attempt.
	DefaultInitialDelay = 5 * time.Second
)

// Policy describes a bounded retry schedule with exponential backoff.
// The wait after failed attempt n (0-based) is InitialDelay * 2^n.
type Policy struct {
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
}

// Default returns the standard policy: 5 attempts starting at 5s.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, InitialDelay: DefaultInitialDelay}
}

func (p Policy) effectiveMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) effectiveInitialDelay() time.Duration {
	if p.InitialDelay <= 0 {
		return DefaultInitialDelay
	}
	return p.InitialDelay
}

// Attempts returns the effective attempt budget.
func (p Policy) Attempts() int { return p.effectiveMaxAttempts() }

// Backoff returns InitialDelay * 2^attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.effectiveInitialDelay() << uint(attempt)
}

// Next reports whether another attempt may follow failed attempt n and,
// if so, how long to wait first. There is never a wait after the final
// attempt.
func (p Policy) Next(attempt int) (time.Duration, bool) {
	if attempt+1 >= p.effectiveMaxAttempts() {
		return 0, false
	}
	return p.Backoff(attempt), true
}

// TotalWait is the sum of all waits of a fully exhausted call.
func (p Policy) TotalWait() time.Duration {
	var total time.Duration
	for n := 0; ; n++ {
		wait, ok := p.Next(n)
		if !ok {
			return total
		}
		total += wait
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tunes a single Do call.
type Options struct {
	// Sleep replaces the real-time wait (tests record waits instead).
	Sleep Sleeper
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func (o Options) sleep() Sleeper {
	if o.Sleep != nil {
		return o.Sleep
	}
	return Sleep
}

// ExhaustedError is returned by Do when every attempt failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, the policy is exhausted, or fn returns an
// error for which retryable reports false. A non-retryable error counts as
// one failed attempt and is returned as is. The number of attempts made is
// always returned.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error), retryable func(error) bool, opts Options) (T, int, error) {
	var zero T
	sleep := opts.sleep()

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		if ctx.Err() != nil {
			return zero, attempt + 1, ctx.Err()
		}
		if retryable == nil || !retryable(err) {
			return zero, attempt + 1, err
		}

		wait, ok := p.Next(attempt)
		if !ok {
			return zero, attempt + 1, &ExhaustedError{Attempts: attempt + 1, Err: err}
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, attempt + 1, err
		}
	}
}
