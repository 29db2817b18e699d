// Package filter rejects extracted code and link candidates that are
// blacklisted, structurally invalid, or degenerate.
package filter

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/sells-group/promo-scout/internal/model"
)

// Reason explains why a candidate was rejected. The zero value means kept.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonBlacklisted Reason = "blacklisted"
	ReasonLength      Reason = "length"
	ReasonGeneric     Reason = "generic"
	ReasonRepeated    Reason = "repeated"
	ReasonDegenerate  Reason = "degenerate"
	ReasonBadURL      Reason = "bad_url"
)

// Default code length window, inclusive.
const (
	DefaultMinLen = 3
	DefaultMaxLen = 15
)

// Rejection records one dropped candidate.
type Rejection struct {
	Candidate model.Candidate `json:"candidate"`
	Reason    Reason          `json:"reason"`
}

// Filter applies the blacklist and structural rules to raw candidates. It
// holds no mutable state and is safe for concurrent use.
type Filter struct {
	blacklist map[string]struct{}
	minLen    int
	maxLen    int
}

// Option configures a Filter.
type Option func(*Filter)

// WithLengthWindow overrides the accepted code length window.
func WithLengthWindow(minLen, maxLen int) Option {
	return func(f *Filter) {
		if minLen > 0 {
			f.minLen = minLen
		}
		if maxLen >= f.minLen {
			f.maxLen = maxLen
		}
	}
}

// WithBlacklist adds terms to the static blacklist.
func WithBlacklist(terms ...string) Option {
	return func(f *Filter) {
		for _, t := range terms {
			if t = model.NormalizeCode(t); t != "" {
				f.blacklist[t] = struct{}{}
			}
		}
	}
}

// New creates a Filter seeded with DefaultBlacklist.
func New(opts ...Option) *Filter {
	f := &Filter{
		blacklist: make(map[string]struct{}, len(DefaultBlacklist)),
		minLen:    DefaultMinLen,
		maxLen:    DefaultMaxLen,
	}
	for _, t := range DefaultBlacklist {
		f.blacklist[model.NormalizeCode(t)] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Blacklisted reports whether code is in the static blacklist or in extra.
func (f *Filter) Blacklisted(code string, extra map[string]struct{}) bool {
	key := model.NormalizeCode(code)
	if _, ok := f.blacklist[key]; ok {
		return true
	}
	_, ok := extra[key]
	return ok
}

// CheckCode applies the rejection rules to a code value in order, returning
// the first that matches. Overlay candidates are exempt from the generic rule
// since a source's own pattern vouches for all-digit or short codes.
func (f *Filter) CheckCode(c model.Candidate, extra map[string]struct{}) Reason {
	if f.Blacklisted(c.Value, extra) {
		return ReasonBlacklisted
	}
	n := len([]rune(c.Value))
	if n < f.minLen || n > f.maxLen {
		return ReasonLength
	}
	reason := Structure(c.Value)
	if c.Overlay && reason == ReasonGeneric {
		return ReasonNone
	}
	return reason
}

// Structure runs the shape rules (generic, repeated, degenerate) on a code
// value, ignoring blacklist and length.
func Structure(value string) Reason {
	var letters, digits int
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	if letters == 0 && digits > 0 {
		return ReasonGeneric
	}
	if digits == 0 && letters > 0 && len([]rune(value)) <= 3 {
		return ReasonGeneric
	}
	if repeated(value) {
		return ReasonRepeated
	}
	if letters == 0 && digits == 0 {
		return ReasonDegenerate
	}
	return ReasonNone
}

// repeated is true when the alphanumeric characters of s are all the same,
// or s contains a run of four or more identical characters.
func repeated(s string) bool {
	var first rune
	same := true
	run, longest := 0, 0
	var prev rune
	for i, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if first == 0 {
				first = r
			} else if r != first {
				same = false
			}
		}
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return (first != 0 && same) || longest >= 4
}

// CheckLink rejects URLs that do not parse as absolute http(s) URLs with a
// dotted host.
func CheckLink(c model.Candidate) Reason {
	u, err := url.Parse(c.Value)
	if err != nil {
		return ReasonBadURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ReasonBadURL
	}
	if !strings.Contains(u.Hostname(), ".") {
		return ReasonBadURL
	}
	return ReasonNone
}

// Apply filters raw candidates into a deduplicated CandidateSet. Codes and
// links run through the rejection rules; numeric discounts pass through
// (their range was clamped at extraction). extraBlacklist is unioned with the
// static blacklist for this call only.
func (f *Filter) Apply(raw []model.Candidate, extraBlacklist []string) (model.CandidateSet, []Rejection) {
	extra := make(map[string]struct{}, len(extraBlacklist))
	for _, t := range extraBlacklist {
		if t = model.NormalizeCode(t); t != "" {
			extra[t] = struct{}{}
		}
	}

	var set model.CandidateSet
	var rejected []Rejection
	for _, c := range raw {
		var reason Reason
		switch c.Kind {
		case model.KindCode:
			reason = f.CheckCode(c, extra)
		case model.KindLink:
			reason = CheckLink(c)
		case model.KindPercentOff, model.KindFlatDiscount:
		default:
			reason = ReasonDegenerate
		}
		if reason != ReasonNone {
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		set.Add(c)
	}
	return set, rejected
}
