package engine

import (
	"context"
	"math"
	"time"
)

// RetryPolicy is a bounded retry schedule shared by the apply engine and the
// health gate. Attempt numbering starts at zero.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier scales the delay between attempts. Values at or below 1
	// give a constant schedule.
	Multiplier float64
}

// DefaultRetryPolicy is the provisioning retry schedule: three attempts
// with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

// Delay returns the backoff delay after the given zero-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Wait sleeps for the backoff delay of the given attempt, returning early
// with the context error if the context is cancelled.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn up to MaxAttempts times, waiting out the backoff schedule
// between attempts. Only transient errors are retried: a permanent error is
// returned immediately. When the budget is exhausted the last transient
// error is promoted to a permanent one with code RETRY_EXHAUSTED.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		if err := p.Wait(ctx, attempt); err != nil {
			return err
		}
	}

	return NewPermanentError("retry budget exhausted", lastErr).WithCode(ErrCodeRetryExhausted)
}
