// Package retry provides the explicit retry policy used around provider and index calls.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"headlines/internal/config"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Waits grow exponentially from InitialInterval and
// never exceed MaxInterval.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error except context cancellation.
	Retryable func(error) bool
}

// DefaultPolicy returns 3 attempts with waits of 2s then 4s, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// FromConfig builds a policy from the retry configuration.
func FromConfig(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The last error of op is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 1 {
		return op(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}
