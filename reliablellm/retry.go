package reliablellm

import (
	"context"
	"errors"
	"time"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffLinear      Backoff = "linear"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <= 0 means 1
	Delay       time.Duration // base delay
	Backoff     Backoff       // empty means exponential

	// OnAttemptFailure observes each failure that will be retried. It is not
	// called for the final failure.
	OnAttemptFailure func(attempt int, err error)

	// ShouldRetry, when set, is consulted before waiting. Returning false
	// stops immediately with the current error.
	ShouldRetry func(err error, attempt int) bool
}

// DefaultRetryPolicy returns 3 attempts with 1s exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     BackoffExponential,
	}
}

// DelayFor returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Backoff == BackoffLinear {
		return p.Delay * time.Duration(attempt)
	}
	return p.Delay * time.Duration(1<<uint(attempt-1))
}

// RetryTransient is a ShouldRetry predicate that retries transport failures
// and gives up on output, validation and configuration errors.
func RetryTransient(err error, _ int) bool {
	return IsRetryable(err)
}

// WithRetry runs op until it succeeds or the policy gives up, and returns the
// last error unchanged. A cancelled ctx stops the wait and yields an
// *AbortError.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			break
		}
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err, attempt) {
			break
		}

		delay := policy.DelayFor(attempt)
		if policy.OnAttemptFailure != nil {
			policy.OnAttemptFailure(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, newAbortError(ctx.Err())
		case <-timer.C:
		}
	}
	return zero, lastErr
}
