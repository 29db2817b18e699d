// Package extract turns unstructured transcript, description, and post text
// into raw promotional candidates (codes, links, percentage and flat
// discounts) using a prioritized pattern table.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promo-scout/internal/filter"
	"github.com/sells-group/promo-scout/internal/model"
)

// Defaults for Config.
const (
	DefaultLowTierGate     = 2
	DefaultMaxFlatDiscount = 10000
)

// Config tunes the extractor.
type Config struct {
	// LowTierGate is the number of surviving higher-tier codes at which LOW
	// tier rules stop running.
	LowTierGate int
	// MaxFlatDiscount is the largest flat discount accepted; larger amounts
	// are discarded as absurd.
	MaxFlatDiscount float64
}

// Diagnostic reports a rule that failed and was skipped. Diagnostics are
// kept apart from the candidate set.
type Diagnostic struct {
	Rule      string `json:"rule"`
	SourceKey string `json:"source_key,omitempty"`
	Err       error  `json:"-"`
	Message   string `json:"message"`
}

// Extraction is the output of one Extract call.
type Extraction struct {
	// Text is the normalized text the rules ran against.
	Text        string
	Set         model.CandidateSet
	Raw         []model.Candidate
	Rejected    []filter.Rejection
	Diagnostics []Diagnostic
}

// Extractor applies the pattern table and hands raw candidates to the
// candidate filter. It holds no mutable state; one instance can serve
// concurrent calls.
type Extractor struct {
	rules  []Rule
	filter *filter.Filter
	cfg    Config
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRules replaces the default pattern table.
func WithRules(rules []Rule) Option {
	return func(e *Extractor) { e.rules = PlanRules(rules) }
}

// New creates an Extractor using DefaultRules. A nil filter gets the default
// filter.
func New(f *filter.Filter, cfg Config, opts ...Option) *Extractor {
	if f == nil {
		f = filter.New()
	}
	if cfg.LowTierGate <= 0 {
		cfg.LowTierGate = DefaultLowTierGate
	}
	if cfg.MaxFlatDiscount <= 0 {
		cfg.MaxFlatDiscount = DefaultMaxFlatDiscount
	}
	e := &Extractor{
		rules:  PlanRules(DefaultRules()),
		filter: f,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the pattern table over rawText and filters the result. Empty
// or whitespace-only text yields an empty Extraction. When overlay is
// non-nil its custom patterns run first as HIGH tier rules and its extra
// blacklist applies to this call only.
func (e *Extractor) Extract(rawText string, overlay *model.SourceRules) Extraction {
	text := Normalize(rawText)
	if text == "" {
		return Extraction{}
	}

	var out Extraction
	out.Text = text

	var extraBlacklist []string
	rules := e.rules
	if overlay != nil {
		extraBlacklist = overlay.ExtraBlacklist
		custom, diags := OverlayRules(overlay)
		out.Diagnostics = append(out.Diagnostics, diags...)
		if len(custom) > 0 {
			rules = PlanRules(append(custom, e.rules...))
		}
	}

	extra := make(map[string]struct{}, len(extraBlacklist))
	for _, t := range extraBlacklist {
		extra[model.NormalizeCode(t)] = struct{}{}
	}

	higher := make(map[string]struct{})
	for _, rule := range rules {
		if rule.Kind == model.KindCode && rule.Tier == model.TierLow &&
			!LowTierAllowed(len(higher), e.cfg.LowTierGate) {
			continue
		}

		hits, err := safeMatch(rule, text)
		if err != nil {
			d := Diagnostic{Rule: rule.Name, Err: err, Message: err.Error()}
			if overlay != nil {
				d.SourceKey = overlay.Key
			}
			out.Diagnostics = append(out.Diagnostics, d)
			zap.L().Warn("extract: rule failed, skipping",
				zap.String("rule", rule.Name),
				zap.String("source_key", d.SourceKey),
				zap.Error(err),
			)
			continue
		}

		for _, h := range hits {
			c, ok := e.candidate(rule, h)
			if !ok {
				continue
			}
			if overlay != nil && strings.HasPrefix(rule.Name, overlayRulePrefix) {
				c.Overlay = true
			}
			out.Raw = append(out.Raw, c)
			if c.Kind == model.KindCode && c.Tier > model.TierLow &&
				e.filter.CheckCode(c, extra) == filter.ReasonNone {
				higher[c.Key()] = struct{}{}
			}
		}
	}

	out.Set, out.Rejected = e.filter.Apply(out.Raw, extraBlacklist)
	return out
}

// candidate converts a hit into a typed candidate, dropping values that fail
// to parse or fall outside the sane range for their kind.
func (e *Extractor) candidate(rule Rule, h Hit) (model.Candidate, bool) {
	switch rule.Kind {
	case model.KindCode:
		v := cleanCode(h.Value)
		if v == "" {
			return model.Candidate{}, false
		}
		return model.NewCode(v, rule.Tier, rule.Name, h.Span), true
	case model.KindLink:
		return model.NewLink(h.Value, rule.Name, h.Span), true
	case model.KindPercentOff:
		pct, err := parseAmount(h.Value)
		if err != nil || pct <= 0 || pct > 100 {
			return model.Candidate{}, false
		}
		return model.NewPercentOff(pct, rule.Name, h.Span), true
	case model.KindFlatDiscount:
		amt, err := parseAmount(h.Value)
		if err != nil || amt <= 0 || amt > e.cfg.MaxFlatDiscount {
			return model.Candidate{}, false
		}
		return model.NewFlatDiscount(amt, rule.Name, h.Span), true
	default:
		return model.Candidate{}, false
	}
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimRight(s, ",.")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: parse amount %q", s)
	}
	return v, nil
}

// safeMatch runs a rule, converting a panicking matcher into an error so one
// bad rule cannot take down the whole extraction.
func safeMatch(rule Rule, text string) (hits []Hit, err error) {
	if rule.Match == nil {
		return nil, eris.Errorf("extract: rule %s has no matcher", rule.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			hits = nil
			err = eris.Errorf("extract: rule %s panicked: %v", rule.Name, r)
		}
	}()
	return rule.Match(text), nil
}

const overlayRulePrefix = "overlay:"

// OverlayRules compiles an overlay's custom patterns into HIGH tier code
// rules, sorted by name. Patterns that fail to compile are reported as
// diagnostics and skipped. A pattern with a capture group yields group 1;
// otherwise the whole match.
func OverlayRules(overlay *model.SourceRules) ([]Rule, []Diagnostic) {
	if overlay == nil || len(overlay.CustomPatterns) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(overlay.CustomPatterns))
	for name := range overlay.CustomPatterns {
		names = append(names, name)
	}
	sort.Strings(names)

	var rules []Rule
	var diags []Diagnostic
	for _, name := range names {
		re, err := regexp.Compile(overlay.CustomPatterns[name])
		if err != nil {
			err = eris.Wrapf(err, "extract: compile overlay pattern %s", name)
			diags = append(diags, Diagnostic{
				Rule:      overlayRulePrefix + name,
				SourceKey: overlay.Key,
				Err:       err,
				Message:   err.Error(),
			})
			zap.L().Warn("extract: invalid overlay pattern",
				zap.String("source_key", overlay.Key),
				zap.String("pattern", name),
				zap.Error(err),
			)
			continue
		}
		group := 0
		if re.NumSubexp() > 0 {
			group = 1
		}
		rules = append(rules, Rule{
			Name:  overlayRulePrefix + name,
			Tier:  model.TierHigh,
			Kind:  model.KindCode,
			Match: RegexMatcher(re, group),
		})
	}
	return rules, diags
}

// String renders a diagnostic for CLI output.
func (d Diagnostic) String() string {
	if d.SourceKey != "" {
		return fmt.Sprintf("%s [%s]: %s", d.Rule, d.SourceKey, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Rule, d.Message)
}
