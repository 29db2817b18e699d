package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTier_Confidence(t *testing.T) {
	assert.Equal(t, 0.9, TierHigh.Confidence())
	assert.Equal(t, 0.6, TierMedium.Confidence())
	assert.Equal(t, 0.3, TierLow.Confidence())
	assert.Equal(t, 0.0, TierUnknown.Confidence())
}

func TestTier_TextRoundTrip(t *testing.T) {
	c := NewCode("SAVE20", TierHigh, "action_code", "use code SAVE20")
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tier":"high"`)

	var got Candidate
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, c, got)
}

func TestParseTier_Unknown(t *testing.T) {
	assert.Equal(t, TierUnknown, ParseTier("bogus"))
	assert.Equal(t, TierMedium, ParseTier(" Medium "))
}

func TestCandidateSet_AddDedupsCodesKeepingHigherTier(t *testing.T) {
	var s CandidateSet
	s.Add(NewCode("save20", TierLow, "mixed_token", ""))
	s.Add(NewCode("SAVE20", TierHigh, "action_code", ""))
	s.Add(NewCode("Save20", TierMedium, "bare_code_label", ""))

	require.Len(t, s.Codes, 1)
	assert.Equal(t, "save20", s.Codes[0].Value, "first-seen casing is kept")
	assert.Equal(t, TierHigh, s.Codes[0].Tier)
	assert.Equal(t, "action_code", s.Codes[0].Rule)
}

func TestCandidateSet_AddLinksAndDiscounts(t *testing.T) {
	var s CandidateSet
	s.Add(NewLink("https://Example.com/deal/", "url", ""))
	s.Add(NewLink("https://example.com/deal", "url", ""))
	s.Add(NewPercentOff(20, "percent_off", ""))
	s.Add(NewPercentOff(20, "save_percent", ""))
	s.Add(NewFlatDiscount(15, "currency_off", ""))
	s.Add(Candidate{Kind: "bogus", Value: "x"})

	assert.Len(t, s.Links, 1)
	assert.Equal(t, []float64{20}, s.PercentOff)
	assert.Equal(t, []float64{15}, s.FlatDiscount)
	assert.False(t, s.Empty())
}

func TestCandidateSet_RetainCodes(t *testing.T) {
	var s CandidateSet
	s.Add(NewCode("SAVE20", TierHigh, "", ""))
	s.Add(NewCode("XJ92K", TierLow, "", ""))
	s.Add(NewPercentOff(20, "", ""))

	narrowed := s.RetainCodes([]string{"save20", "NOTFOUND"})
	assert.Equal(t, []string{"SAVE20"}, narrowed.CodeValues())
	assert.Equal(t, []float64{20}, narrowed.PercentOff)
	assert.Len(t, s.Codes, 2, "original set is not modified")
}

func TestCandidateSet_EqualIgnoresOrder(t *testing.T) {
	var a, b CandidateSet
	a.Add(NewCode("ONE1", TierHigh, "", ""))
	a.Add(NewCode("TWO2", TierMedium, "", ""))
	a.Add(NewPercentOff(10, "", ""))
	b.Add(NewPercentOff(10, "", ""))
	b.Add(NewCode("two2", TierMedium, "", ""))
	b.Add(NewCode("one1", TierHigh, "", ""))
	assert.True(t, a.Equal(b))

	b.Add(NewFlatDiscount(5, "", ""))
	assert.False(t, a.Equal(b))
}

func TestCandidateSet_MaxPercentOff(t *testing.T) {
	s := CandidateSet{PercentOff: []float64{10, 35, 20}}
	assert.Equal(t, 35.0, s.MaxPercentOff())
	assert.Equal(t, 0.0, CandidateSet{}.MaxPercentOff())
}

func TestJoinSegments(t *testing.T) {
	got := JoinSegments("Title here", "  ", "", "body line one", " body line two ")
	assert.Equal(t, "Title here\nbody line one\nbody line two", got)
	assert.Equal(t, "", JoinSegments())
}

func TestEscalationFailure_CanRetry(t *testing.T) {
	f := &EscalationFailure{RetryCount: 2, MaxRetries: 3}
	assert.True(t, f.CanRetry())
	f.RetryCount = 3
	assert.False(t, f.CanRetry())
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusAccepted.Valid())
	assert.True(t, StatusNeedsReview.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, Status("pending").Valid())
}
