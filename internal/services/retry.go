package services

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy describes how remote calls are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below one mean a single attempt.
	MaxAttempts int
	// BaseDelay is the first backoff; each later one doubles up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable decides whether an error is worth another attempt. Defaults to [IsTransient].
	Retryable func(error) bool
	// BeforeSleep runs before each backoff sleep.
	BeforeSleep func(op string, attempt int, delay time.Duration, err error)
	// AfterAttempt runs after every attempt, successful or not.
	AfterAttempt func(op string, attempt int, err error)
}

// DefaultRetryPolicy allows three attempts with a 4s base delay capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
		Retryable:   IsTransient,
	}
}

// WithLogger fills unset hooks with ones that log through logger.
func (p RetryPolicy) WithLogger(logger *log.Logger) RetryPolicy {
	if p.BeforeSleep == nil {
		p.BeforeSleep = func(op string, attempt int, delay time.Duration, err error) {
			logger.Info("retrying request", "op", op, "attempt", attempt, "delay", delay, "error", err)
		}
	}
	if p.AfterAttempt == nil {
		p.AfterAttempt = func(op string, attempt int, err error) {
			if err != nil {
				logger.Debug("request attempt failed", "op", op, "attempt", attempt, "error", err)
				return
			}
			logger.Debug("request attempt succeeded", "op", op, "attempt", attempt)
		}
	}
	return p
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

	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return retry.WithMaxRetries(retries, b)
}

// Do runs op until it succeeds, returns a non-retryable error or exhausts the attempts.
//
// The last error is returned unchanged. Backoff sleeps end early with ctx.Err() when ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var (
		attempt int
		lastErr error
	)

	next := p.backoff()
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if !stop && p.BeforeSleep != nil {
			p.BeforeSleep(op, attempt, delay, lastErr)
		}
		return delay, stop
	})

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		lastErr = err
		if p.AfterAttempt != nil {
			p.AfterAttempt(op, attempt, err)
		}
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
