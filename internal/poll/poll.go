// Package poll implements fixed-interval polling with either a bounded
// attempt budget or an unbounded, cancellable wait.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Unbounded is the MaxAttempts value for a wait that only ends on success,
// a condition error or context cancellation.
const Unbounded = 0

// ErrExhausted is returned when every attempt ran without the condition holding.
var ErrExhausted = errors.New("poll: attempts exhausted")

// errPending marks an attempt where the condition did not hold yet.
var errPending = errors.New("poll: condition not met")

// Policy describes how often and how many times a condition is checked.
type Policy struct {
	// Interval is the delay between two attempts.
	Interval time.Duration

	// MaxAttempts bounds the number of attempts. Unbounded (0) never gives up.
	MaxAttempts int
}

// Bounded returns a policy that checks at most attempts times.
func Bounded(interval time.Duration, attempts int) Policy {
	return Policy{Interval: interval, MaxAttempts: attempts}
}

// Forever returns a policy that checks until success or cancellation.
func Forever(interval time.Duration) Policy {
	return Policy{Interval: interval, MaxAttempts: Unbounded}
}

// Condition is checked once per attempt. attempt starts at 1.
// It returns done=true to stop with value, or a non-nil error to abort.
type Condition[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Until checks cond according to p. The first attempt runs immediately.
//
// It returns the value of the first successful attempt, the error of an
// aborting attempt, ctx.Err() on cancellation, or ErrExhausted once a bounded
// policy runs out of attempts.
func Until[T any](ctx context.Context, p Policy, cond Condition[T]) (T, error) {
	attempt := 0

	op := func() (T, error) {
		attempt++

		value, done, err := cond(ctx, attempt)
		switch {
		case err != nil:
			return value, backoff.Permanent(err)
		case done:
			return value, nil
		default:
			return value, errPending
		}
	}

	value, err := backoff.RetryWithData(op, p.backOff(ctx))
	if errors.Is(err, errPending) {
		return value, ErrExhausted
	}
	return value, err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)

	switch {
	case p.MaxAttempts == 1:
		b = &backoff.StopBackOff{}
	case p.MaxAttempts > 1:
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}

	return backoff.WithContext(b, ctx)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
