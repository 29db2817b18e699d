package model

import (
	"strings"
)

// Kind identifies which promotional artifact a Candidate carries.
type Kind string

const (
	KindCode         Kind = "code"
	KindLink         Kind = "link"
	KindPercentOff   Kind = "percent_off"
	KindFlatDiscount Kind = "flat_discount"
)

// Kinds lists every candidate kind in display order.
var Kinds = []Kind{KindCode, KindLink, KindPercentOff, KindFlatDiscount}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCode, KindLink, KindPercentOff, KindFlatDiscount:
		return true
	}
	return false
}

// Tier is the provenance confidence of the pattern rule that produced a
// candidate. Higher values mean more explicit source patterns.
type Tier int

const (
	TierUnknown Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Confidence returns the implied confidence of a candidate found by a rule
// of this tier. Unknown tiers carry no confidence.
func (t Tier) Confidence() float64 {
	switch t {
	case TierHigh:
		return 0.9
	case TierMedium:
		return 0.6
	case TierLow:
		return 0.3
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	*t = ParseTier(string(b))
	return nil
}

// ParseTier converts a tier name back to a Tier. Unrecognized names map to
// TierUnknown.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh
	case "medium":
		return TierMedium
	case "low":
		return TierLow
	default:
		return TierUnknown
	}
}

// Candidate is one extracted artifact. Codes and links carry Value; percent
// and flat discounts carry Amount. Candidates are never mutated after
// construction.
type Candidate struct {
	Kind   Kind    `json:"kind"`
	Value  string  `json:"value,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Tier   Tier    `json:"tier"`
	// Rule names the pattern that matched.
	Rule string `json:"rule,omitempty"`
	// Span is the surrounding text the candidate was found in.
	Span string `json:"span,omitempty"`
	// Overlay is true when a per-source custom pattern produced the candidate.
	Overlay bool `json:"overlay,omitempty"`
}

// NewCode builds a code candidate.
func NewCode(value string, tier Tier, rule, span string) Candidate {
	return Candidate{Kind: KindCode, Value: value, Tier: tier, Rule: rule, Span: span}
}

// NewLink builds a link candidate.
func NewLink(url, rule, span string) Candidate {
	return Candidate{Kind: KindLink, Value: url, Tier: TierMedium, Rule: rule, Span: span}
}

// NewPercentOff builds a percentage discount candidate.
func NewPercentOff(pct float64, rule, span string) Candidate {
	return Candidate{Kind: KindPercentOff, Amount: pct, Tier: TierMedium, Rule: rule, Span: span}
}

// NewFlatDiscount builds a flat (currency) discount candidate.
func NewFlatDiscount(amount float64, rule, span string) Candidate {
	return Candidate{Kind: KindFlatDiscount, Amount: amount, Tier: TierMedium, Rule: rule, Span: span}
}

// Key is the dedup key of the candidate within its kind. Codes are
// case-normalized; links are compared case-insensitively without a trailing
// slash.
func (c Candidate) Key() string {
	switch c.Kind {
	case KindCode:
		return NormalizeCode(c.Value)
	case KindLink:
		return strings.TrimSuffix(strings.ToLower(c.Value), "/")
	default:
		return ""
	}
}

// NormalizeCode returns the case-folded form of a code used for dedup and
// blacklist comparisons.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
