package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how often a failed per-file operation is attempted again.
// The zero value makes exactly one attempt.
type Policy struct {
	// Attempts is the total number of tries including the first one.
	Attempts int

	// Backoff is the delay before the first retry.
	Backoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// Jitter is the random spread applied to each delay as a fraction of it.
	Jitter float64

	// Retryable decides whether an error is retried. Defaults to IsTransient.
	Retryable func(error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error)
}

// NewPolicy builds a Policy from config values, with exponential backoff.
func NewPolicy(attempts, backoffMs, maxBackoffMs int) Policy {
	p := Policy{
		Attempts:   attempts,
		Backoff:    time.Duration(backoffMs) * time.Millisecond,
		MaxBackoff: time.Duration(maxBackoffMs) * time.Millisecond,
		Jitter:     0.2,
	}
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil || !retryable(err) {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// LogRetries returns an OnRetry callback that logs each retry of op on file.
func LogRetries(op, file string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying",
			zap.String("operation", op),
			zap.String("file", file),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
