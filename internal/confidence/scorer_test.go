package confidence

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promo-scout/internal/model"
)

func code(v string, tier model.Tier) model.Candidate {
	return model.NewCode(v, tier, "test", "")
}

func setOf(cands ...model.Candidate) model.CandidateSet {
	var s model.CandidateSet
	for _, c := range cands {
		s.Add(c)
	}
	return s
}

func TestScore_Empty(t *testing.T) {
	b := New(DefaultWeights()).Score(model.CandidateSet{}, nil)
	assert.Equal(t, 0.0, b.Confidence)
	assert.Equal(t, 0.0, b.Penalties)

	b = New(DefaultWeights()).Score(model.CandidateSet{}, &ScoreContext{Text: "This video is sponsored by nobody"})
	assert.Equal(t, 0.0, b.Confidence, "sponsor phrasing alone earns nothing")
}

func TestScore_HighCodeWithPercent(t *testing.T) {
	set := setOf(code("SAVE20", model.TierHigh), model.NewPercentOff(20, "percent_off", ""))
	b := New(DefaultWeights()).Score(set, &ScoreContext{Text: "Use code SAVE20 to get 20% off your order!"})

	assert.InDelta(t, 0.585, b.Code, 1e-9)
	assert.InDelta(t, 0.152, b.Context, 1e-9)
	assert.InDelta(t, 0.05, b.Coherence, 1e-9)
	assert.Equal(t, 0.0, b.Penalties)
	assert.InDelta(t, 0.787, b.Confidence, 1e-9)
	assert.GreaterOrEqual(t, b.Confidence, 0.6)
}

func TestScore_SingleMediumCode(t *testing.T) {
	b := New(DefaultWeights()).Score(setOf(code("ABC-123", model.TierMedium)), nil)
	assert.InDelta(t, 0.39, b.Confidence, 1e-9)
	assert.GreaterOrEqual(t, b.Confidence, 0.3)
	assert.Less(t, b.Confidence, 0.6)
}

func TestScore_SpamPenalty(t *testing.T) {
	s := New(DefaultWeights())
	var eight, two []model.Candidate
	for i := 0; i < 8; i++ {
		c := code(fmt.Sprintf("CODE%dX", i), model.TierMedium)
		eight = append(eight, c)
		if i < 2 {
			two = append(two, c)
		}
	}
	many := s.Score(setOf(eight...), nil)
	few := s.Score(setOf(two...), nil)

	assert.Less(t, many.Confidence, few.Confidence)
	assert.InDelta(t, 0.21, many.SpamPenalty, 1e-9)
	assert.Equal(t, 0.0, few.SpamPenalty)
}

func TestScore_SpamPenaltyIgnoresHighTier(t *testing.T) {
	s := New(DefaultWeights())
	var cands []model.Candidate
	for i := 0; i < 7; i++ {
		cands = append(cands, code(fmt.Sprintf("HIGH%dZ", i), model.TierHigh))
	}
	b := s.Score(setOf(cands...), nil)
	assert.Equal(t, 0.0, b.SpamPenalty)
}

func TestScore_TwoHighCodesBonus(t *testing.T) {
	s := New(DefaultWeights())
	one := s.Score(setOf(code("ONE1X", model.TierHigh)), nil)
	two := s.Score(setOf(code("ONE1X", model.TierHigh), code("TWO2X", model.TierHigh)), nil)
	assert.InDelta(t, one.Code+0.05, two.Code, 1e-9)
}

func TestScore_Monotonic_AddHighCode(t *testing.T) {
	s := New(DefaultWeights())
	bases := []model.CandidateSet{
		{},
		setOf(code("LOW1X", model.TierLow)),
		setOf(code("MED1X", model.TierMedium), model.NewPercentOff(10, "", "")),
		setOf(code("HIGH1X", model.TierHigh), code("HIGH2X", model.TierHigh)),
		setOf(model.NewLink("https://example.com/deal", "url", "")),
		setOf(model.NewFlatDiscount(5, "", ""), model.NewLink("https://example.com", "url", "")),
	}
	for i := 0; i < 9; i++ {
		var cands []model.Candidate
		for j := 0; j <= i; j++ {
			cands = append(cands, code(fmt.Sprintf("MED%dQ", j), model.TierMedium))
		}
		bases = append(bases, setOf(cands...))
	}

	for i, base := range bases {
		before := s.Score(base, nil).Confidence
		grown := base.Clone()
		grown.Add(code("NEWHIGH9", model.TierHigh))
		after := s.Score(grown, nil).Confidence
		assert.GreaterOrEqual(t, after, before, "base %d", i)
	}
}

func TestScore_Monotonic_AddHighCodeWithText(t *testing.T) {
	s := New(DefaultWeights())
	text := "Use code FIRST1 or code NEWHIGH9 for 10% off"
	base := setOf(code("FIRST1", model.TierMedium), model.NewPercentOff(10, "", ""))
	grown := base.Clone()
	grown.Add(code("NEWHIGH9", model.TierHigh))

	before := s.Score(base, &ScoreContext{Text: text}).Confidence
	after := s.Score(grown, &ScoreContext{Text: text}).Confidence
	assert.GreaterOrEqual(t, after, before)
}

func TestScore_UnechoedHighCodeTakesEchoPenalty(t *testing.T) {
	s := New(DefaultWeights())
	set := setOf(code("FIRST1", model.TierMedium), code("NEWHIGH9", model.TierHigh))

	echoed := s.Score(set, &ScoreContext{Text: "Use code FIRST1 or code NEWHIGH9"})
	unechoed := s.Score(set, &ScoreContext{Text: "Use code FIRST1 or code SOMEOTHER"})

	assert.Empty(t, echoed.UnechoedCodes)
	assert.Equal(t, []string{"NEWHIGH9"}, unechoed.UnechoedCodes)
	assert.InDelta(t, DefaultWeights().EchoPenalty, unechoed.EchoPenalty, 1e-9)
	assert.Less(t, unechoed.Confidence, echoed.Confidence)
}

func TestScore_SuspiciousOverlayCodeNeverIncreases(t *testing.T) {
	s := New(DefaultWeights())
	bases := []model.CandidateSet{
		{},
		setOf(code("SAVE20", model.TierHigh)),
		setOf(model.NewPercentOff(25, "", "")),
	}
	for i, base := range bases {
		before := s.Score(base, nil)
		grown := base.Clone()
		sus := model.NewCode("1234", model.TierHigh, "overlay:digits", "")
		sus.Overlay = true
		grown.Add(sus)
		after := s.Score(grown, nil)

		assert.LessOrEqual(t, after.Confidence, before.Confidence, "base %d", i)
		assert.Equal(t, []string{"1234"}, after.SuspiciousCodes)
	}
}

func TestScore_OverlayCodeWithNormalShapeIsNotSuspicious(t *testing.T) {
	c := model.NewCode("CREATOR10", model.TierHigh, "overlay:creator", "")
	c.Overlay = true
	b := New(DefaultWeights()).Score(setOf(c), nil)
	assert.Empty(t, b.SuspiciousCodes)
	assert.InDelta(t, 0.585, b.Confidence, 1e-9)
}

func TestScore_EchoPenalty(t *testing.T) {
	s := New(DefaultWeights())
	set := setOf(code("SAVE20", model.TierHigh), code("GHOST7", model.TierMedium))

	withText := s.Score(set, &ScoreContext{Text: "use code save20 today"})
	noText := s.Score(set, nil)

	assert.Equal(t, []string{"GHOST7"}, withText.UnechoedCodes)
	assert.InDelta(t, 0.15, withText.EchoPenalty, 1e-9)
	assert.Equal(t, 0.0, noText.EchoPenalty)
	assert.Less(t, withText.Confidence, noText.Confidence)
}

func TestScore_SponsorBonus(t *testing.T) {
	s := New(DefaultWeights())
	set := setOf(code("ACME15", model.TierHigh))
	plain := s.Score(set, &ScoreContext{Text: "use code ACME15"})
	sponsored := s.Score(set, &ScoreContext{Text: "This video is sponsored by Acme. Use code ACME15"})
	assert.InDelta(t, 0.05, sponsored.Sponsor, 1e-9)
	assert.InDelta(t, plain.Confidence+0.05, sponsored.Confidence, 1e-9)
}

func TestScore_LinkQualityOrdering(t *testing.T) {
	s := New(DefaultWeights())
	promo := s.Score(setOf(model.NewLink("https://example.com/deal?ref=creator", "url", "")), nil)
	commercial := s.Score(setOf(model.NewLink("https://amzn.to/3xYz", "url", "")), nil)
	bare := s.Score(setOf(model.NewLink("https://example.com/blog", "url", "")), nil)

	assert.Greater(t, promo.Link, commercial.Link)
	assert.Greater(t, commercial.Link, bare.Link)
	assert.InDelta(t, 0.15, promo.Link, 1e-9)
}

func TestScore_CoherenceBonus(t *testing.T) {
	s := New(DefaultWeights())
	set := setOf(
		code("SAVE20", model.TierHigh),
		model.NewPercentOff(20, "", ""),
		model.NewLink("https://example.com/promo", "url", ""),
	)
	b := s.Score(set, nil)
	assert.InDelta(t, 0.12, b.Coherence, 1e-9)
}

func TestScore_Bounded(t *testing.T) {
	s := New(DefaultWeights())
	var cands []model.Candidate
	for i := 0; i < 6; i++ {
		cands = append(cands, code(fmt.Sprintf("BIG%dDEAL", i), model.TierHigh))
	}
	cands = append(cands,
		model.NewPercentOff(90, "", ""),
		model.NewFlatDiscount(50, "", ""),
		model.NewLink("https://example.com/promo", "url", ""),
	)
	high := s.Score(setOf(cands...), &ScoreContext{Text: "sponsored by BIG0DEAL BIG1DEAL BIG2DEAL BIG3DEAL BIG4DEAL BIG5DEAL"})
	assert.LessOrEqual(t, high.Confidence, 1.0)
	assert.GreaterOrEqual(t, high.Confidence, 0.0)

	var low []model.Candidate
	for i := 0; i < 12; i++ {
		c := model.NewCode(fmt.Sprintf("%d000", i+1), model.TierLow, "overlay:x", "")
		c.Overlay = true
		low = append(low, c, code(fmt.Sprintf("LOW%dQ", i), model.TierLow))
	}
	b := s.Score(setOf(low...), &ScoreContext{Text: "nothing here"})
	assert.Equal(t, 0.0, b.Confidence)
}

func TestScore_MalformedInputScoresZero(t *testing.T) {
	s := New(DefaultWeights())
	set := model.CandidateSet{
		Codes:        []model.Candidate{{Kind: model.KindCode, Value: "ODD1X", Tier: model.TierUnknown}},
		PercentOff:   []float64{math.NaN(), 250},
		FlatDiscount: []float64{math.Inf(1), -5},
		Links:        []model.Candidate{{Kind: model.KindLink, Value: " "}},
	}
	var b Breakdown
	require.NotPanics(t, func() { b = s.Score(set, nil) })
	assert.Equal(t, 0.0, b.Confidence)
	assert.Len(t, b.Notes, 6)
}

func TestScore_Reproducible(t *testing.T) {
	s := New(DefaultWeights())
	set := setOf(code("SAVE20", model.TierHigh), model.NewFlatDiscount(10, "", ""))
	assert.Equal(t, s.Score(set, nil), s.Score(set.Clone(), nil))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.4))
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.4567, Clamp(0.45671))
}
