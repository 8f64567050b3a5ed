// Package poll waits for an asynchronously populated value with a bounded
// number of attempts.
package poll

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Outcome tags how a poll ended.
type Outcome int

const (
	Ready Outcome = iota + 1
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Budget bounds the loop: at most MaxAttempts probes, Interval apart.
type Budget struct {
	Interval    time.Duration
	MaxAttempts int
}

var ErrInvalidBudget = errors.New("invalid_poll_budget")

func (b Budget) Validate() error {
	if b.Interval < 0 || b.MaxAttempts <= 0 {
		return ErrInvalidBudget
	}
	return nil
}

func (b Budget) policy(ctx context.Context) backoff.BackOffContext {
	constant := backoff.NewConstantBackOff(b.Interval)
	return backoff.WithContext(backoff.WithMaxRetries(constant, uint64(b.MaxAttempts-1)), ctx)
}

// Probe performs one attempt. It reports ready=true once the value is
// complete. A non-nil error aborts the poll.
type Probe[T any] func(ctx context.Context, attempt int) (value T, ready bool, err error)

// Result carries the last probed value, which may be partial when TimedOut.
type Result[T any] struct {
	Outcome  Outcome
	Value    T
	Attempts int
}

var errNotReady = errors.New("poll: not ready")

// Until probes immediately and then once per Interval until the probe is
// ready, the budget is exhausted, or ctx is done.
func Until[T any](ctx context.Context, budget Budget, probe Probe[T]) (Result[T], error) {
	var res Result[T]
	if err := budget.Validate(); err != nil {
		return res, err
	}
	if probe == nil {
		return res, errors.New("poll probe is required")
	}

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt := res.Attempts + 1
		value, ready, err := probe(ctx, attempt)
		res.Attempts = attempt
		if err != nil {
			return backoff.Permanent(err)
		}
		res.Value = value
		if !ready {
			return errNotReady
		}
		return nil
	}

	err := backoff.Retry(operation, budget.policy(ctx))
	switch {
	case err == nil:
		res.Outcome = Ready
		return res, nil
	case errors.Is(err, errNotReady):
		res.Outcome = TimedOut
		return res, nil
	default:
		return res, err
	}
}
