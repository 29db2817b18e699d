package confidence

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/promo-scout/internal/config"
	"github.com/sells-group/promo-scout/internal/filter"
	"github.com/sells-group/promo-scout/internal/model"
)

// ScoreContext carries optional inputs beyond the candidate set. Text is the
// normalized source text; when set, codes that never appear in it are
// penalized and sponsor phrasing earns a bonus.
type ScoreContext struct {
	Text string
}

// Breakdown records each contribution to a score. It is derived entirely
// from the inputs to Score and can be recomputed at any time.
type Breakdown struct {
	Code      float64 `json:"code"`
	Context   float64 `json:"context"`
	Sponsor   float64 `json:"sponsor"`
	Link      float64 `json:"link"`
	Coherence float64 `json:"coherence"`

	SpamPenalty       float64 `json:"spam_penalty"`
	SuspiciousPenalty float64 `json:"suspicious_penalty"`
	EchoPenalty       float64 `json:"echo_penalty"`
	Penalties         float64 `json:"penalties"`

	Confidence float64 `json:"confidence"`

	SuspiciousCodes []string `json:"suspicious_codes,omitempty"`
	UnechoedCodes   []string `json:"unechoed_codes,omitempty"`
	// Notes lists malformed inputs that were scored as zero.
	Notes []string `json:"notes,omitempty"`
}

// Scorer computes confidence from a candidate set. It is stateless after
// construction and safe for concurrent use.
type Scorer struct {
	w config.ScoringConfig
}

// New creates a Scorer with the given weights.
func New(w config.ScoringConfig) *Scorer {
	return &Scorer{w: w}
}

// Weights returns the scorer's configuration.
func (s *Scorer) Weights() config.ScoringConfig { return s.w }

var sponsorMarkers = []string{
	"sponsored by", "today's sponsor", "this video is sponsored",
	"brought to you by", "thanks to our sponsor", "partnered with",
	"in partnership with", "paid promotion", "affiliate link",
	"use my code", "my link", "link in the description",
}

// Score computes the breakdown for set. sc may be nil.
func (s *Scorer) Score(set model.CandidateSet, sc *ScoreContext) Breakdown {
	var b Breakdown
	w := s.w

	var text string
	if sc != nil {
		text = strings.ToUpper(sc.Text)
	}

	valid, suspicious := s.partitionCodes(set.Codes, &b)

	// Code contribution.
	if len(valid) > 0 {
		best, sum := 0.0, 0.0
		highs := 0
		for _, c := range valid {
			conf := c.Tier.Confidence()
			sum += conf
			if conf > best {
				best = conf
			}
			if c.Tier == model.TierHigh {
				highs++
			}
		}
		avg := sum / float64(len(valid))
		b.Code = w.CodeWeight * (w.BestTierBlend*best + (1-w.BestTierBlend)*avg)
		if highs >= 2 {
			b.Code += w.HighTierBonus
		}
	}

	// Discount context.
	pct, flat := s.discountScores(set, &b)
	ctxScore := math.Max(pct, flat)
	if pct > 0 && flat > 0 {
		ctxScore += 0.1
	}
	b.Context = w.ContextWeight * math.Min(ctxScore, 1)

	// Link quality.
	bestLink := -1
	for _, l := range set.Links {
		if strings.TrimSpace(l.Value) == "" {
			b.Notes = append(b.Notes, "empty link value")
			continue
		}
		if q := int(ClassifyLink(l.Value)); q > bestLink {
			bestLink = q
		}
	}
	if bestLink >= 0 {
		b.Link = w.LinkWeight * LinkQuality(bestLink).score()
	}

	hasCode := len(valid) > 0
	hasDiscount := pct > 0 || flat > 0
	promoLink := bestLink == int(LinkPromotional)

	if text != "" && (hasCode || bestLink >= 0) {
		lower := strings.ToLower(sc.Text)
		for _, m := range sponsorMarkers {
			if strings.Contains(lower, m) {
				b.Sponsor = w.SponsorBonus
				break
			}
		}
	}

	// Coherence between independent signal types.
	if hasCode && hasDiscount {
		b.Coherence += 0.05
	}
	if hasCode && promoLink {
		b.Coherence += 0.05
	}
	if hasDiscount && promoLink {
		b.Coherence += 0.02
	}
	b.Coherence = math.Min(b.Coherence, w.CoherenceCap)

	// Penalties.
	nonHigh := 0
	for _, c := range valid {
		if c.Tier != model.TierHigh {
			nonHigh++
		}
	}
	if excess := nonHigh - w.MaxCodes; excess > 0 {
		b.SpamPenalty = math.Min(w.SpamPenaltyCap, w.SpamPenaltyBase+w.SpamPenaltyStep*float64(excess-1))
	}

	for _, c := range suspicious {
		b.SuspiciousCodes = append(b.SuspiciousCodes, c.Value)
	}
	b.SuspiciousPenalty = math.Min(w.SuspiciousPenaltyCap, w.SuspiciousPenalty*float64(len(suspicious)))

	if text != "" {
		for _, c := range set.Codes {
			if !strings.Contains(text, model.NormalizeCode(c.Value)) {
				b.UnechoedCodes = append(b.UnechoedCodes, c.Value)
			}
		}
		b.EchoPenalty = math.Min(w.EchoPenaltyCap, w.EchoPenalty*float64(len(b.UnechoedCodes)))
	}

	b.Penalties = b.SpamPenalty + b.SuspiciousPenalty + b.EchoPenalty

	raw := b.Code + b.Context + b.Sponsor + b.Link + b.Coherence - b.Penalties
	b.Confidence = Clamp(raw)
	return b
}

// partitionCodes splits codes into those that earn credit and those flagged
// as suspicious: overlay codes whose shape would have been rejected without
// the overlay. Codes with an unknown tier earn nothing and are noted.
func (s *Scorer) partitionCodes(codes []model.Candidate, b *Breakdown) (valid, suspicious []model.Candidate) {
	for _, c := range codes {
		if c.Overlay && filter.Structure(c.Value) != filter.ReasonNone {
			suspicious = append(suspicious, c)
			continue
		}
		if c.Tier.Confidence() == 0 {
			b.Notes = append(b.Notes, fmt.Sprintf("code %q has unknown tier", c.Value))
			continue
		}
		valid = append(valid, c)
	}
	return valid, suspicious
}

// discountScores returns the unweighted percent and flat discount scores.
// A larger percentage scores higher up to 50%.
func (s *Scorer) discountScores(set model.CandidateSet, b *Breakdown) (pct, flat float64) {
	best := 0.0
	for _, p := range set.PercentOff {
		if math.IsNaN(p) || p <= 0 || p > 100 {
			b.Notes = append(b.Notes, fmt.Sprintf("percent discount %v out of range", p))
			continue
		}
		best = math.Max(best, p)
	}
	if best > 0 {
		pct = 0.6 + 0.4*math.Min(best, 50)/50
	}

	for _, f := range set.FlatDiscount {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			b.Notes = append(b.Notes, fmt.Sprintf("flat discount %v out of range", f))
			continue
		}
		flat = 0.7
	}
	return pct, flat
}

// Clamp bounds x to [0,1] and rounds to four decimals. NaN maps to 0.
func Clamp(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return math.Round(x*10000) / 10000
}
