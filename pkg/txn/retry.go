package txn

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nikmy/graphtx/pkg/errors"
)

// RetryPolicy reruns a whole unit of work after a transient failure.
// Work must be safe to run again from the top.
type RetryPolicy struct {
	MaxRetries uint64        `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`

	// JitterPercent spreads concurrent retries; 0 disables jitter.
	JitterPercent uint64 `yaml:"jitter_percent"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		JitterPercent: 20,
	}
}

// NoRetry runs every unit of work exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Do runs unit until it succeeds, fails permanently, or the retry bound is
// reached, in which case the error wraps ErrRetriesExhausted.
func (p RetryPolicy) Do(ctx context.Context, unit func(ctx context.Context) error) error {
	attempts, exhausted, err := p.run(ctx, nil, unit)
	if exhausted {
		return newError(ErrRetriesExhausted, PhaseRetry, "", errors.Wrapf(err, "after %d attempts", attempts))
	}
	return err
}

func (p RetryPolicy) run(
	ctx context.Context,
	onRetry func(attempt int, err error),
	unit func(ctx context.Context) error,
) (attempts int, exhausted bool, err error) {
	if p.MaxRetries == 0 {
		return 1, false, unit(ctx)
	}

	var lastTransient error
	err = retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := unit(ctx)
		if Classify(err) == Permanent {
			lastTransient = nil
			return err
		}

		lastTransient = err
		if onRetry != nil && uint64(attempts) <= p.MaxRetries {
			onRetry(attempts, err)
		}
		return retry.RetryableError(err)
	})

	// go-retry hands back the last transient error when the backoff stops,
	// and ctx.Err() when it gives up because of the caller.
	exhausted = err != nil && lastTransient != nil && ctx.Err() == nil
	return attempts, exhausted, err
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}
