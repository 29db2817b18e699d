package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		Backoff:         time.Millisecond,
		MaxBackoff:      4 * time.Millisecond,
		OverloadBackoff: 2 * time.Millisecond,
	}
}

func TestRetry_OverloadedThenVerdict(t *testing.T) {
	var attempts []int
	var waits []time.Duration
	p := fastPolicy()
	p.OnRetry = func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }

	v, err := Retry(context.Background(), p, func(_ context.Context, attempt int) (*verdict, error) {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return nil, overloaded()
		}
		return &verdict{confidence: 0.7}, nil
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.7, v.confidence, 1e-9)
	assert.Equal(t, []int{0, 1, 2}, attempts)
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, p.OverloadBackoff)
	}
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(context.Context, int) (*verdict, error) {
		calls++
		return nil, &APIError{Status: 503, Err: eris.New("unavailable")}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)
}

func TestRetry_DoesNotRepeatFinalFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", &APIError{Status: 400, Err: eris.New("invalid request")}},
		{"scorer timed out", eris.Wrap(context.DeadlineExceeded, "secondary: create message")},
		{"unparseable verdict", &Failure{Kind: KindParse, Err: eris.New("missing confidence")}},
		{"circuit open", ErrCircuitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := Retry(context.Background(), fastPolicy(), func(context.Context, int) (*verdict, error) {
				calls++
				return nil, tt.err
			})
			require.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRetry_CancelDuringWait(t *testing.T) {
	p := fastPolicy()
	p.OverloadBackoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	_, err := Retry(ctx, p, func(context.Context, int) (*verdict, error) {
		calls++
		return nil, overloaded()
	})

	assert.True(t, IsOverloaded(err), "the last scorer error is returned")
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Wait(t *testing.T) {
	p := RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, OverloadBackoff: 5 * time.Second}
	server := &APIError{Status: 502, Err: eris.New("bad gateway")}

	assert.Equal(t, 100*time.Millisecond, p.Wait(0, server))
	assert.Equal(t, 200*time.Millisecond, p.Wait(1, server))
	assert.Equal(t, 300*time.Millisecond, p.Wait(5, server))
	assert.Equal(t, 5*time.Second, p.Wait(0, overloaded()))
	assert.Equal(t, 5*time.Second, p.Wait(0, &APIError{Status: 429, Err: eris.New("rate limited")}))
}

func TestRetryPolicy_WaitJitter(t *testing.T) {
	p := RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: time.Second, Jitter: 0.5}
	for range 50 {
		w := p.Wait(0, eris.New("reset"))
		assert.GreaterOrEqual(t, w, 50*time.Millisecond)
		assert.LessOrEqual(t, w, 150*time.Millisecond)
	}
}
