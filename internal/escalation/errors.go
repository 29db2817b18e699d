package escalation

import "github.com/sells-group/promo-scout/internal/resilience"

// Kind classifies an escalation failure.
type Kind = resilience.Kind

const (
	KindTransport   = resilience.KindTransport
	KindTimeout     = resilience.KindTimeout
	KindParse       = resilience.KindParse
	KindCircuitOpen = resilience.KindCircuitOpen
	KindCanceled    = resilience.KindCanceled
)

// Error is a failed escalation. Every kind is recoverable: the heuristic
// result stands and the failure is logged for a later retry.
type Error = resilience.Failure

// NewParseError wraps err as a parse failure.
func NewParseError(err error) *Error {
	return &Error{Kind: KindParse, Err: err}
}

// Classify returns the failure kind of err.
func Classify(err error) Kind { return resilience.Classify(err) }
