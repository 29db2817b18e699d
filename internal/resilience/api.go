package resilience

import (
	"errors"
	"io"
	"syscall"
)

// Anthropic answers 529 when the API is overloaded and 429 when the account
// is over its rate limit.
const (
	StatusTooManyRequests = 429
	StatusOverloaded      = 529
)

// APIError is a non-2xx reply from the secondary scorer's API.
type APIError struct {
	Status int
	Err    error
}

func (e *APIError) Error() string { return e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// Overloaded reports whether the API is up but shedding load. Such replies
// are retried after a longer wait than other server errors.
func (e *APIError) Overloaded() bool {
	return e.Status == StatusOverloaded || e.Status == StatusTooManyRequests
}

// RetryableStatus reports whether a call that got this status may succeed if
// sent again right away.
func RetryableStatus(status int) bool {
	return status == 408 || status == StatusTooManyRequests || status >= 500
}

// IsOverloaded reports whether err carries a 429 or 529 reply.
func IsOverloaded(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Overloaded()
}

// Retryable reports whether a failed call should be attempted again within
// the same escalation: a retryable API status or a dropped connection.
// Timeouts are not retried; the attempt already used its full budget.
func Retryable(err error) bool {
	if err == nil || Classify(err) != KindTransport {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return RetryableStatus(ae.Status)
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
