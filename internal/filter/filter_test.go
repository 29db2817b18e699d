package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promo-scout/internal/model"
)

func TestCheckCode(t *testing.T) {
	f := New()
	tests := []struct {
		name    string
		value   string
		overlay bool
		want    Reason
	}{
		{"valid mixed", "SAVE20", false, ReasonNone},
		{"valid letters only", "TECHDEAL", false, ReasonNone},
		{"valid with dash", "ABC-123", false, ReasonNone},
		{"blacklisted", "code", false, ReasonBlacklisted},
		{"blacklisted platform", "YouTube", false, ReasonBlacklisted},
		{"too short", "A1", false, ReasonLength},
		{"too long", "ABCDEFGHIJ123456", false, ReasonLength},
		{"all digits", "12345", false, ReasonGeneric},
		{"short letters", "XYZ", false, ReasonGeneric},
		{"all same", "AAAA", false, ReasonRepeated},
		{"long run", "XX1111", false, ReasonRepeated},
		{"symbol run", "----", false, ReasonRepeated},
		{"no alphanumerics", "-_-_", false, ReasonDegenerate},
		{"overlay digits allowed", "1234", true, ReasonNone},
		{"overlay repeated still rejected", "AAAA", true, ReasonRepeated},
		{"overlay blacklist still applies", "PROMO", true, ReasonBlacklisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := model.NewCode(tt.value, model.TierHigh, "test", "")
			c.Overlay = tt.overlay
			assert.Equal(t, tt.want, f.CheckCode(c, nil))
		})
	}
}

func TestCheckCode_ExtraBlacklist(t *testing.T) {
	f := New()
	c := model.NewCode("Creator10", model.TierHigh, "test", "")
	assert.Equal(t, ReasonNone, f.CheckCode(c, nil))
	assert.Equal(t, ReasonBlacklisted, f.CheckCode(c, map[string]struct{}{"CREATOR10": {}}))
}

func TestWithLengthWindow(t *testing.T) {
	f := New(WithLengthWindow(5, 8))
	assert.Equal(t, ReasonLength, f.CheckCode(model.NewCode("AB12", model.TierHigh, "", ""), nil))
	assert.Equal(t, ReasonNone, f.CheckCode(model.NewCode("AB123", model.TierHigh, "", ""), nil))
	assert.Equal(t, ReasonLength, f.CheckCode(model.NewCode("AB1234567", model.TierHigh, "", ""), nil))
}

func TestWithBlacklist(t *testing.T) {
	f := New(WithBlacklist("nordvpn", " "))
	assert.True(t, f.Blacklisted("NordVPN", nil))
	assert.True(t, f.Blacklisted("coupon", nil))
	assert.False(t, f.Blacklisted("SAVE20", nil))
}

func TestCheckLink(t *testing.T) {
	tests := []struct {
		url  string
		want Reason
	}{
		{"https://example.com/deal", ReasonNone},
		{"http://shop.example.co.uk/?ref=abc", ReasonNone},
		{"ftp://example.com/file", ReasonBadURL},
		{"https://localhost/deal", ReasonBadURL},
		{"not a url", ReasonBadURL},
		{"https://exa mple.com", ReasonBadURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckLink(model.NewLink(tt.url, "url", "")))
		})
	}
}

func TestApply(t *testing.T) {
	f := New()
	raw := []model.Candidate{
		model.NewCode("SAVE20", model.TierHigh, "action_code", ""),
		model.NewCode("save20", model.TierMedium, "bare_code_label", ""),
		model.NewCode("AAAA", model.TierHigh, "action_code", ""),
		model.NewCode("SUBSCRIBE", model.TierMedium, "bare_code_label", ""),
		model.NewCode("CHANNEL99", model.TierLow, "mixed_token", ""),
		model.NewLink("https://example.com/deal", "url", ""),
		model.NewLink("mailto:me@example.com", "url", ""),
		model.NewPercentOff(20, "percent_off", ""),
		model.NewFlatDiscount(15, "currency_off", ""),
		{Kind: "bogus", Value: "x"},
	}

	set, rejected := f.Apply(raw, []string{"channel99"})

	assert.Equal(t, []string{"SAVE20"}, set.CodeValues())
	assert.Equal(t, model.TierHigh, set.Codes[0].Tier)
	assert.Equal(t, []string{"https://example.com/deal"}, set.LinkValues())
	assert.Equal(t, []float64{20}, set.PercentOff)
	assert.Equal(t, []float64{15}, set.FlatDiscount)

	reasons := make(map[string]Reason, len(rejected))
	for _, r := range rejected {
		key := r.Candidate.Value
		reasons[key] = r.Reason
	}
	require.Len(t, rejected, 5)
	assert.Equal(t, ReasonRepeated, reasons["AAAA"])
	assert.Equal(t, ReasonBlacklisted, reasons["SUBSCRIBE"])
	assert.Equal(t, ReasonBlacklisted, reasons["CHANNEL99"])
	assert.Equal(t, ReasonBadURL, reasons["mailto:me@example.com"])
	assert.Equal(t, ReasonDegenerate, reasons["x"])
}

func TestApply_ExtraBlacklistDoesNotLeak(t *testing.T) {
	f := New()
	raw := []model.Candidate{model.NewCode("CREATOR10", model.TierHigh, "", "")}

	set, _ := f.Apply(raw, []string{"CREATOR10"})
	assert.True(t, set.Empty())

	set, _ = f.Apply(raw, nil)
	assert.Equal(t, []string{"CREATOR10"}, set.CodeValues())
}

func TestApply_Empty(t *testing.T) {
	set, rejected := New().Apply(nil, nil)
	assert.True(t, set.Empty())
	assert.Empty(t, rejected)
}
