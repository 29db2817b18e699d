// Package secondary implements the LLM-backed secondary scorer consulted for
// low-confidence extractions.
package secondary

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promo-scout/internal/config"
	"github.com/sells-group/promo-scout/internal/escalation"
	"github.com/sells-group/promo-scout/internal/resilience"
	"github.com/sells-group/promo-scout/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 512
	cacheTTL         = "5m"
)

// Scorer asks a Claude model to validate a candidate set.
type Scorer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Scorer.
func New(client anthropic.Client, cfg config.AnthropicConfig) *Scorer {
	s := &Scorer{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}
	if s.model == "" {
		s.model = defaultModel
	}
	if s.maxTokens <= 0 {
		s.maxTokens = defaultMaxTokens
	}
	return s
}

// Name identifies the scorer in logs and failure metadata.
func (s *Scorer) Name() string { return "anthropic:" + s.model }

// Score sends req to the model and parses its verdict. Non-2xx replies come
// back as *resilience.APIError; unusable replies as parse errors.
func (s *Scorer) Score(ctx context.Context, req escalation.Request) (*escalation.Verdict, error) {
	user, err := userPrompt(req)
	if err != nil {
		return nil, eris.Wrap(err, "secondary: render prompt")
	}
	temp := 0.0
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      anthropic.CachedSystem(systemPrompt, cacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		var se *anthropic.StatusError
		if errors.As(err, &se) {
			return nil, &resilience.APIError{Status: se.StatusCode, Err: eris.Wrap(err, "secondary: create message")}
		}
		return nil, eris.Wrap(err, "secondary: create message")
	}
	resp.Usage.LogCost(s.model, req.SourceID)

	v, err := parseVerdict(resp.Text())
	if err != nil {
		zap.L().Debug("secondary: unparseable reply",
			zap.String("source_id", req.SourceID),
			zap.String("stop_reason", resp.StopReason),
			zap.Error(err),
		)
		return nil, escalation.NewParseError(err)
	}
	return v, nil
}

func parseVerdict(text string) (*escalation.Verdict, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("secondary: empty reply")
	}
	var raw struct {
		Confidence     *float64 `json:"confidence"`
		ValidCodes     []string `json:"valid_codes"`
		Reasoning      string   `json:"reasoning"`
		Recommendation string   `json:"recommendation"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "secondary: decode verdict")
	}
	if raw.Confidence == nil {
		return nil, eris.New("secondary: verdict has no confidence")
	}
	v := &escalation.Verdict{
		Confidence:     *raw.Confidence,
		ValidCodes:     raw.ValidCodes,
		Reasoning:      strings.TrimSpace(raw.Reasoning),
		Recommendation: normalizeRecommendation(raw.Recommendation),
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// cleanJSON strips markdown fences and extracts the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
