package resilience

import (
	"context"
	"io"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestAPIError_Overloaded(t *testing.T) {
	assert.True(t, (&APIError{Status: 529}).Overloaded())
	assert.True(t, (&APIError{Status: 429}).Overloaded())
	assert.False(t, (&APIError{Status: 500}).Overloaded())
	assert.False(t, (&APIError{Status: 400}).Overloaded())
}

func TestIsOverloaded_ThroughWrapping(t *testing.T) {
	err := eris.Wrap(&APIError{Status: StatusOverloaded, Err: eris.New("overloaded")}, "score vid-1")
	assert.True(t, IsOverloaded(err))
	assert.True(t, IsOverloaded(AsFailure(err)))
	assert.False(t, IsOverloaded(eris.New("overloaded")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"overloaded", &APIError{Status: 529, Err: eris.New("overloaded")}, true},
		{"rate limited", &APIError{Status: 429, Err: eris.New("rate limited")}, true},
		{"server error", &APIError{Status: 502, Err: eris.New("bad gateway")}, true},
		{"request timeout", &APIError{Status: 408, Err: eris.New("request timeout")}, true},
		{"bad request", &APIError{Status: 400, Err: eris.New("invalid request")}, false},
		{"auth", &APIError{Status: 401, Err: eris.New("invalid x-api-key")}, false},
		{"connection reset", eris.Wrap(syscall.ECONNRESET, "read"), true},
		{"truncated body", io.ErrUnexpectedEOF, true},
		{"scorer timed out", context.DeadlineExceeded, false},
		{"unparseable verdict", &Failure{Kind: KindParse, Err: eris.New("not json")}, false},
		{"circuit open", ErrCircuitOpen, false},
		{"unknown", eris.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
