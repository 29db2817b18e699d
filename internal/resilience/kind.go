// Package resilience decides what happens when a secondary scorer call
// fails: how the failure is classified, whether the call is retried and how
// long to wait, when the circuit opens, and when a logged failure is due
// again.
package resilience

import (
	"context"
	"errors"
	"net"
)

// Kind classifies a failed escalation.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindTimeout     Kind = "timeout"
	KindParse       Kind = "parse"
	KindCircuitOpen Kind = "circuit_open"
	KindCanceled    Kind = "canceled"
)

// Trips reports whether a failure of this kind counts against the circuit
// breaker. Only an unreachable or slow API does; a malformed reply means the
// API answered.
func (k Kind) Trips() bool {
	return k == KindTransport || k == KindTimeout
}

// Transient reports whether replaying the same request later can succeed.
func (k Kind) Transient() bool {
	return k != KindParse
}

// Failure is a failed escalation. Every kind is recoverable: the heuristic
// result stands and the failure is logged for a later retry.
type Failure struct {
	Kind Kind
	Err  error
}

func (e *Failure) Error() string {
	if e.Err == nil {
		return "escalation: " + string(e.Kind)
	}
	return "escalation: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Failure) Unwrap() error { return e.Err }

// Classify returns the failure kind of err. Anything unrecognized is a
// transport failure.
func Classify(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// AsFailure wraps err into a *Failure, keeping an existing classification.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: Classify(err), Err: err}
}
