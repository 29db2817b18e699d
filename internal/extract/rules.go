package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/sells-group/promo-scout/internal/model"
)

// Hit is one raw match produced by a rule.
type Hit struct {
	Value string
	Span  string
}

// Matcher finds hits in normalized text.
type Matcher func(text string) []Hit

// Rule is one entry in the prioritized pattern table.
type Rule struct {
	Name  string
	Tier  model.Tier
	Kind  model.Kind
	Match Matcher
}

// spanRadius is how many bytes of context are kept on each side of a match.
const spanRadius = 40

// RegexMatcher returns a Matcher that yields capture group `group` of every
// match of re (or the whole match when group is 0).
func RegexMatcher(re *regexp.Regexp, group int) Matcher {
	return func(text string) []Hit {
		var hits []Hit
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(idx) < 2*group+2 || idx[2*group] < 0 {
				continue
			}
			start, end := idx[2*group], idx[2*group+1]
			hits = append(hits, Hit{
				Value: text[start:end],
				Span:  span(text, idx[0], idx[1]),
			})
		}
		return hits
	}
}

func span(text string, start, end int) string {
	lo := max(0, start-spanRadius)
	hi := min(len(text), end+spanRadius)
	// Keep slice boundaries on rune starts.
	for lo > 0 && !isRuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !isRuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// codeToken is the character class of a code value inside a pattern.
const codeToken = `(?-i:[A-Za-z0-9][A-Za-z0-9_-]{1,24})`

func codeRule(name string, tier model.Tier, pattern string) Rule {
	return Rule{Name: name, Tier: tier, Kind: model.KindCode, Match: codeShaped(RegexMatcher(regexp.MustCompile(pattern), 1))}
}

// codeShaped drops hits that read as ordinary words. The keyword part of a
// code pattern is case-insensitive, so "enter code during checkout" would
// otherwise capture "during". A code needs a digit or at least two uppercase
// letters; that keeps SAVE20, ACME and SaveBig but drops "during" and
// sentence-initial "Provided".
func codeShaped(m Matcher) Matcher {
	return func(text string) []Hit {
		hits := m(text)
		kept := hits[:0]
		for _, h := range hits {
			if LooksLikeCode(h.Value) {
				kept = append(kept, h)
			}
		}
		return kept
	}
}

// LooksLikeCode reports whether v has a digit or two or more uppercase
// letters.
func LooksLikeCode(v string) bool {
	upper := 0
	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			return true
		case unicode.IsUpper(r):
			upper++
		}
	}
	return upper >= 2
}

// DefaultRules returns the built-in pattern table. Order within a tier is the
// order rules are applied; PlanRules sorts tiers.
func DefaultRules() []Rule {
	rules := []Rule{
		// HIGH: explicit calls to action and quoted codes.
		codeRule("action_code", model.TierHigh,
			`(?i)\b(?:use|enter|apply|type|redeem)\s+(?:the\s+|my\s+|our\s+)?(?:promo\s*|coupon\s*|discount\s*|offer\s*)?code\s*[:\-]?\s*["']?(`+codeToken+`)`),
		codeRule("action_promo", model.TierHigh,
			`(?i)\b(?:use|enter|apply)\s+(?:promo|coupon|voucher)\s*[:\-]?\s*["']?(`+codeToken+`)`),
		codeRule("quoted_code", model.TierHigh,
			`(?i)\bcode\s*[:=]?\s*["'](`+codeToken+`)["']`),
		codeRule("quoted_before_code", model.TierHigh,
			`["'](`+codeToken+`)["']\s+(?i:(?:promo\s+|coupon\s+|discount\s+)?code)\b`),

		// MEDIUM: labeled codes.
		codeRule("labeled_code", model.TierMedium,
			`(?i)\b(?:promo|coupon|discount|voucher|referral|code)(?:\s*code)?\s*[:=]\s*(`+codeToken+`)`),
		codeRule("keyword_code", model.TierMedium,
			`(?i)\b(?:promo|coupon|discount|voucher|referral)\s+code\s+(?:is\s+)?(`+codeToken+`)`),
		codeRule("redeem_code", model.TierMedium,
			`(?i:\b(?:redeem|claim|activate))\s+([A-Z0-9][A-Z0-9_-]{2,24})\b`),
		codeRule("bare_code_label", model.TierMedium,
			`(?i:\bcode)\s+([A-Z0-9][A-Z0-9_-]{2,24})\b`),

		// LOW: bare alphanumeric tokens.
		{Name: "mixed_token", Tier: model.TierLow, Kind: model.KindCode, Match: mixedTokens},
	}
	rules = append(rules, discountRules()...)
	rules = append(rules, Rule{Name: "url", Tier: model.TierMedium, Kind: model.KindLink, Match: matchLinks})
	return rules
}

func discountRules() []Rule {
	const num = `(\d[\d,]*(?:\.\d{1,2})?)`
	mk := func(name string, kind model.Kind, pattern string) Rule {
		return Rule{Name: name, Tier: model.TierMedium, Kind: kind, Match: RegexMatcher(regexp.MustCompile(pattern), 1)}
	}
	return []Rule{
		mk("percent_off", model.KindPercentOff,
			`(?i)\b(\d{1,3}(?:\.\d+)?)\s?%\s*(?:off|discount|savings?|cheaper|less)\b`),
		mk("save_percent", model.KindPercentOff,
			`(?i)\b(?:save|get|take|extra|up\s+to|enjoy|receive)\s+(?:an?\s+)?(?:extra\s+)?(\d{1,3}(?:\.\d+)?)\s?%`),
		mk("percent_word", model.KindPercentOff,
			`(?i)\b(\d{1,3})\s?(?:percent|per\s?cent)\s+(?:off|discount)\b`),
		mk("currency_off", model.KindFlatDiscount,
			`(?i)[$€£]\s?`+num+`\s*(?:off|discount|credit|savings?|back)\b`),
		mk("save_currency", model.KindFlatDiscount,
			`(?i)\b(?:save|get|take|extra)\s+(?:an?\s+)?(?:extra\s+)?[$€£]\s?`+num),
		mk("amount_keyword", model.KindFlatDiscount,
			`(?i)\b`+num+`\s?(?:dollars?|usd|eur|euros?|gbp|pounds?|bucks)\s+(?:off|discount|credit)\b`),
	}
}

var (
	tokenRe = regexp.MustCompile(`\b[A-Za-z0-9]+(?:[-_][A-Za-z0-9]+)?\b`)

	// Tokens that mix letters and digits but are units, formats or times.
	unitTokenRe = regexp.MustCompile(`(?i)^(?:\d+(?:p|k|fps|hz|khz|mhz|ghz|gb|mb|kb|tb|mm|cm|km|kg|lb|lbs|ml|oz|am|pm|st|nd|rd|th|s|x|d|h|m|min|mins|sec|hr|hrs|yo|v|w|mah)|[a-z]\d{1,2}|(?:mp|h|x)\d{1,3}|ps\d|covid\d+|s\d+e\d+|\d+[a-z]\d+)$`)
)

// lowTierWords are English words that commonly appear fused with a number
// (Day1, Top10, Part2) and are never promo codes.
var lowTierWords = map[string]struct{}{
	"day": {}, "top": {}, "part": {}, "episode": {}, "ep": {}, "season": {},
	"level": {}, "round": {}, "step": {}, "chapter": {}, "vol": {},
	"version": {}, "gen": {}, "mark": {}, "mk": {}, "iphone": {}, "pixel": {},
	"galaxy": {}, "windows": {}, "win": {}, "ios": {}, "android": {},
	"rtx": {}, "gtx": {}, "rx": {}, "usb": {}, "wifi": {}, "hdmi": {},
	"utf": {}, "sha": {}, "md": {}, "web": {}, "covid": {}, "ww": {},
	"game": {}, "map": {}, "page": {}, "week": {}, "year": {}, "class": {},
}

// mixedTokens is the LOW tier heuristic: tokens of 4-15 characters mixing
// letters and digits that are not units, formats, or word+number phrases.
// Tokens inside URLs are skipped; links are scored on their own.
func mixedTokens(text string) []Hit {
	urls := linkRe.FindAllStringIndex(text, -1)
	var hits []Hit
	for _, idx := range tokenRe.FindAllStringIndex(text, -1) {
		if insideAny(idx, urls) {
			continue
		}
		tok := text[idx[0]:idx[1]]
		if len(tok) < 4 || len(tok) > 15 {
			continue
		}
		var letters, digits int
		var word strings.Builder
		for _, r := range tok {
			switch {
			case unicode.IsLetter(r):
				letters++
				word.WriteRune(unicode.ToLower(r))
			case unicode.IsDigit(r):
				digits++
			}
		}
		if letters == 0 || digits == 0 {
			continue
		}
		if unitTokenRe.MatchString(tok) {
			continue
		}
		if _, ok := lowTierWords[word.String()]; ok {
			continue
		}
		hits = append(hits, Hit{Value: tok, Span: span(text, idx[0], idx[1])})
	}
	return hits
}

func insideAny(idx []int, spans [][]int) bool {
	for _, sp := range spans {
		if idx[0] >= sp[0] && idx[1] <= sp[1] {
			return true
		}
	}
	return false
}

// PlanRules orders rules by descending tier, keeping the declared order
// within a tier. HIGH rules run before MEDIUM, MEDIUM before LOW.
func PlanRules(rules []Rule) []Rule {
	out := append([]Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier > out[j].Tier })
	return out
}

// LowTierAllowed is the gate for LOW tier code rules: they only run while
// fewer than gate distinct higher-tier codes have survived filtering.
func LowTierAllowed(higherTierCodes, gate int) bool {
	return higherTierCodes < gate
}

// cleanCode trims separators left on the edges of a captured code.
func cleanCode(v string) string {
	return strings.Trim(v, "-_.")
}
