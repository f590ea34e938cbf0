package retry

import (
	"context"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 200 * time.Millisecond
)

// Attempt describes a failed try that is about to be retried.
type Attempt struct {
	Index int // 0 for the first retry
	Err   error
	Delay time.Duration
}

// Policy defines retry behavior for a single Execute call.
type Policy struct {
	// MaxRetries is the number of additional tries after the first one fails.
	// Negative values are treated as 0.
	MaxRetries int
	// BaseDelay is the wait before the first retry. Each further retry doubles it.
	// Values <= 0 fall back to DefaultBaseDelay.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another try. Defaults to IsTransient.
	Retryable func(error) bool
	// OnRetry is called right before each wait.
	OnRetry func(Attempt)
}

// DefaultPolicy provides sensible defaults for database calls.
// 200ms, 400ms, 800ms
var DefaultPolicy = Policy{
	MaxRetries: DefaultMaxRetries,
	BaseDelay:  DefaultBaseDelay,
	Retryable:  IsTransient,
}

// Delay returns the wait before retry i (0-indexed): BaseDelay * 2^i.
// It saturates at the largest time.Duration instead of overflowing.
func (p Policy) Delay(i int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if i < 0 {
		i = 0
	}
	if i >= 63 || base > math.MaxInt64>>uint(i) {
		return math.MaxInt64
	}
	return base << uint(i)
}

func (p Policy) normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Execute runs op until it succeeds, fails with an error the policy does not
// consider retryable, or the retry budget is spent.
//
// The value of the successful try is returned as is. On failure the error of
// the last try is returned unchanged, so callers can compare it with == or
// inspect it with errors.As.
//
// Execute adds no deadline of its own. If ctx is done before a try or while
// waiting between tries, ctx.Err() is returned instead.
func Execute[T any](
	ctx context.Context,
	op func(context.Context) (T, error),
	options ...Option,
) (T, error) {
	p := DefaultPolicy
	for _, o := range options {
		o(&p)
	}
	p = p.normalize()

	var (
		lastErr error
		retries int
	)

	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		if retries >= p.MaxRetries {
			return 0, true
		}
		delay := p.Delay(retries)
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Index: retries, Err: lastErr, Delay: delay})
		}
		retries++
		return delay, false
	})

	return goretry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.Retryable(err) {
			return v, goretry.RetryableError(err)
		}
		return v, err
	})
}

// Do is Execute for operations that only return an error.
func Do(ctx context.Context, op func(context.Context) error, options ...Option) error {
	_, err := Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, options...)
	return err
}
