package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls the retries inside one escalation. Only Retryable
// errors are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first try; 1 disables retries.
	MaxAttempts int
	// Backoff is the wait before the first retry; it doubles per attempt up
	// to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// OverloadBackoff is the minimum wait after a 429 or 529 reply.
	OverloadBackoff time.Duration
	// Jitter spreads each wait by up to this fraction either way.
	Jitter float64
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy retries once: 500ms later, or 5s after an overload.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     2,
		Backoff:         500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		OverloadBackoff: 5 * time.Second,
		Jitter:          0.25,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.OverloadBackoff < 0 {
		p.OverloadBackoff = 0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Wait returns how long to wait before attempt+1 after err.
func (p RetryPolicy) Wait(attempt int, err error) time.Duration {
	p = p.withDefaults()
	d := math.Min(float64(p.Backoff)*math.Pow(2, float64(attempt)), float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	wait := time.Duration(math.Max(d, 0))
	if IsOverloaded(err) && wait < p.OverloadBackoff {
		wait = p.OverloadBackoff
	}
	return wait
}

// Retry calls fn until it succeeds, fails with an error that is not
// Retryable, or runs out of attempts. fn receives the zero-based attempt
// number. Cancellation of ctx ends the wait and returns the last error.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		if attempt+1 >= p.MaxAttempts || !Retryable(err) || ctx.Err() != nil {
			return zero, err
		}

		wait := p.Wait(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
