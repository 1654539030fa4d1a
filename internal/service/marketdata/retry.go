package marketdata

import (
	"context"
	"math"
	"time"
)

// Policy is a bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy is three attempts with 1s and 1.5s waits between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 1.5}
}

// Delay is the wait after the given 1-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result is the outcome of Attempt. Err is the last error seen.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports success.
func (r Result[T]) OK() bool { return r.Err == nil }

// Attempt calls fn until it succeeds, the policy is exhausted, retryable
// rejects the error or the context ends. No wait follows the last attempt.
// onRetry, when set, is called before each wait.
func Attempt[T any](
	ctx context.Context,
	p Policy,
	sleep Sleeper,
	retryable func(error) bool,
	onRetry func(attempt int, wait time.Duration, err error),
	fn func(ctx context.Context) (T, error),
) Result[T] {
	if sleep == nil {
		sleep = SleepContext
	}
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}

	var res Result[T]
	for attempt := 1; attempt <= max; attempt++ {
		res.Attempts = attempt
		v, err := fn(ctx)
		if err == nil {
			res.Value, res.Err = v, nil
			return res
		}
		res.Err = err

		if attempt == max || (retryable != nil && !retryable(err)) {
			break
		}
		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			break
		}
	}
	return res
}
