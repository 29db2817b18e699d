package secondary

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/promo-scout/internal/escalation"
	"github.com/sells-group/promo-scout/internal/model"
)

// systemPrompt is static so it can sit behind a cache breakpoint.
const systemPrompt = `You review promotional offers extracted from video transcripts, descriptions and social posts.

You receive a text excerpt, the candidate promo codes, links and discounts a pattern matcher found in it, and the matcher's confidence.

Decide whether the excerpt really advertises a redeemable promotion and which candidate codes are genuine promo codes. Ordinary words, product names, model numbers, usernames and hashtags are not codes.

Respond with ONLY a JSON object:
{"confidence": <number 0.0-1.0>, "valid_codes": [<codes from the candidate list that are genuine>], "reasoning": "<one or two sentences>", "recommendation": "accept" | "review" | "reject"}

Only list codes that appear in the candidate list. Use an empty list when none are genuine.`

// userPrompt renders the request as the user message.
func userPrompt(req escalation.Request) (string, error) {
	codes := make([]string, 0, len(req.Candidates.Codes))
	for _, c := range req.Candidates.Codes {
		codes = append(codes, fmt.Sprintf("%s (%s)", c.Value, c.Tier))
	}
	payload := struct {
		Codes               []string  `json:"codes"`
		Links               []string  `json:"links"`
		PercentOff          []float64 `json:"percent_off"`
		FlatDiscount        []float64 `json:"flat_discount"`
		HeuristicConfidence float64   `json:"heuristic_confidence"`
	}{
		Codes:               codes,
		Links:               req.Candidates.LinkValues(),
		PercentOff:          req.Candidates.PercentOff,
		FlatDiscount:        req.Candidates.FlatDiscount,
		HeuristicConfidence: req.HeuristicConfidence,
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Source: ")
	sb.WriteString(req.SourceID)
	sb.WriteString("\n\nExcerpt:\n<<<\n")
	sb.WriteString(req.Excerpt)
	sb.WriteString("\n>>>\n\nCandidates:\n")
	sb.Write(b)
	return sb.String(), nil
}

func normalizeRecommendation(s string) model.Recommendation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted":
		return model.RecommendAccept
	case "review", "needs_review":
		return model.RecommendReview
	case "reject", "rejected":
		return model.RecommendReject
	default:
		return model.Recommendation(strings.TrimSpace(s))
	}
}
