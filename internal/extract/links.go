package extract

import (
	"regexp"
	"strings"
)

var linkRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()\[\]{}|\\^` + "`" + `]+`)

// boilerplateLinks are URL shapes that never carry a promotion: profile
// roots, subscribe/join links, invites and links to other videos. They are
// matched against the lowercased URL with scheme and "www." removed.
var boilerplateLinks = []*regexp.Regexp{
	regexp.MustCompile(`^(?:m\.)?youtube\.com/?$`),
	regexp.MustCompile(`^(?:m\.)?youtube\.com/(?:@[^/?#]+|channel/[^/?#]+|c/[^/?#]+|user/[^/?#]+)(?:/(?:join|videos|featured|about|community|shorts|streams|playlists))?/?(?:[?#].*)?$`),
	regexp.MustCompile(`^(?:m\.)?youtube\.com/(?:watch|playlist|shorts/|live/|subscription_center|hashtag/)`),
	regexp.MustCompile(`[?&]sub_confirmation=1`),
	regexp.MustCompile(`^youtu\.be/`),
	regexp.MustCompile(`^(?:twitter\.com|x\.com|instagram\.com|tiktok\.com|facebook\.com|fb\.com|threads\.net|twitch\.tv|snapchat\.com|github\.com|bsky\.app/profile|mastodon\.social)/@?[a-z0-9_.-]+/?(?:[?#].*)?$`),
	regexp.MustCompile(`^patreon\.com/(?:c/)?[^/?#]+(?:/(?:join|membership|posts))?/?(?:[?#].*)?$`),
	regexp.MustCompile(`^(?:discord\.gg|discord\.com/invite)/`),
	regexp.MustCompile(`^linkedin\.com/(?:in|company)/[^/?#]+/?(?:[?#].*)?$`),
	regexp.MustCompile(`^(?:old\.)?reddit\.com/(?:r|u|user)/[^/?#]+/?(?:[?#].*)?$`),
	regexp.MustCompile(`^open\.spotify\.com/(?:artist|show|user)/`),
	regexp.MustCompile(`^(?:ko-fi\.com|buymeacoffee\.com|paypal\.me|streamlabs\.com)/`),
}

// trimLink removes sentence punctuation glued to the end of a URL.
func trimLink(u string) string {
	return strings.TrimRight(u, ".,;:!?'\"*")
}

// CanonicalLink adds a scheme to bare "www." links.
func CanonicalLink(u string) string {
	u = trimLink(u)
	if strings.HasPrefix(strings.ToLower(u), "www.") {
		return "https://" + u
	}
	return u
}

// IsBoilerplateLink reports whether the URL shape is on the structural
// denylist.
func IsBoilerplateLink(u string) bool {
	shape := strings.ToLower(u)
	shape = strings.TrimPrefix(shape, "https://")
	shape = strings.TrimPrefix(shape, "http://")
	shape = strings.TrimPrefix(shape, "www.")
	for _, re := range boilerplateLinks {
		if re.MatchString(shape) {
			return true
		}
	}
	return false
}

func matchLinks(text string) []Hit {
	var hits []Hit
	for _, idx := range linkRe.FindAllStringIndex(text, -1) {
		u := CanonicalLink(text[idx[0]:idx[1]])
		if IsBoilerplateLink(u) {
			continue
		}
		hits = append(hits, Hit{Value: u, Span: span(text, idx[0], idx[1])})
	}
	return hits
}
