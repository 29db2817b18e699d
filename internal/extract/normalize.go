package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	stripPolicy = bluemonday.StrictPolicy()

	// Curly quotes and dashes that caption and description editors insert.
	punctReplacer = strings.NewReplacer(
		"\u201c", `"`, "\u201d", `"`, "\u201e", `"`,
		"\u2018", "'", "\u2019", "'", "\u201a", "'",
		"\u2013", "-", "\u2014", "-", "\u2212", "-",
		"\u200b", "",
	)

	spaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	lineRun  = regexp.MustCompile(`\n{3,}`)
)

// Normalize prepares raw text for pattern matching: HTML markup from video
// descriptions and post bodies is stripped, entities are decoded, Unicode is
// folded to NFKC (fullwidth letters become ASCII), typographic punctuation
// is straightened, and whitespace is collapsed. The result is trimmed; an
// empty return means there is nothing to extract.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := raw
	if strings.ContainsAny(text, "<>") {
		text = stripPolicy.Sanitize(text)
	}
	text = html.UnescapeString(text)
	text = norm.NFKC.String(text)
	text = punctReplacer.Replace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = lineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
