// Package pipeline wires extraction, filtering, scoring, escalation and
// result assembly into per-item and batch processing.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promo-scout/internal/confidence"
	"github.com/sells-group/promo-scout/internal/escalation"
	"github.com/sells-group/promo-scout/internal/extract"
	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/overlay"
	"github.com/sells-group/promo-scout/internal/store"
)

// Item is one source item to process.
type Item struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
	// SourceKey selects a rule overlay, typically a channel or publisher ID.
	SourceKey string `json:"source_key,omitempty"`
}

// Outcome is everything produced for one item. Result is always set unless
// Skipped is true or the item failed before assembly.
type Outcome struct {
	Item       Item
	Result     model.ExtractionResult
	Breakdown  confidence.Breakdown
	Extraction extract.Extraction
	Decision   escalation.Decision
	// Saved is true when the sink wrote the result.
	Saved bool
	// Skipped is true when the sink already held a result for the item.
	Skipped bool
	Err     error
}

// Observer receives each outcome as it completes. Calls are serialized.
type Observer func(Outcome)

// Processor runs the full per-item flow. It is safe for concurrent use.
type Processor struct {
	extractor  *extract.Extractor
	scorer     *confidence.Scorer
	controller *escalation.Controller
	overlays   *overlay.Registry
	sink       store.Sink
	observer   Observer
	skipSeen   bool
	now        func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithOverlays sets the per-source overlay registry.
func WithOverlays(r *overlay.Registry) Option {
	return func(p *Processor) { p.overlays = r }
}

// WithSink writes every result to s.
func WithSink(s store.Sink) Option {
	return func(p *Processor) { p.sink = s }
}

// WithObserver reports progress to fn.
func WithObserver(fn Observer) Option {
	return func(p *Processor) { p.observer = fn }
}

// SkipExisting skips items the sink already holds a result for.
func SkipExisting() Option {
	return func(p *Processor) { p.skipSeen = true }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor. A nil controller never escalates and uses the
// default thresholds.
func New(ex *extract.Extractor, sc *confidence.Scorer, ctrl *escalation.Controller, opts ...Option) *Processor {
	if ctrl == nil {
		ctrl = escalation.NewController(escalation.Config{}, nil, nil)
	}
	p := &Processor{
		extractor:  ex,
		scorer:     sc,
		controller: ctrl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one item through extraction, scoring, escalation and
// assembly, then hands the result to the sink if one is configured. Only
// sink errors are returned; every other failure is folded into the result.
func (p *Processor) Process(ctx context.Context, item Item) (Outcome, error) {
	out := Outcome{Item: item}

	if p.sink != nil && p.skipSeen {
		seen, err := p.sink.Exists(ctx, item.SourceID)
		if err != nil {
			return out, eris.Wrapf(err, "pipeline: check existing %s", item.SourceID)
		}
		if seen {
			out.Skipped = true
			return out, nil
		}
	}

	rules, _ := p.overlays.Lookup(item.SourceKey)
	out.Extraction = p.extractor.Extract(item.Text, rules)
	set := out.Extraction.Set

	out.Breakdown = p.scorer.Score(set, &confidence.ScoreContext{Text: out.Extraction.Text})

	out.Decision = p.controller.Resolve(ctx, escalation.Input{
		SourceID:   item.SourceID,
		Text:       out.Extraction.Text,
		Candidates: set,
		Confidence: out.Breakdown.Confidence,
	})

	out.Result = fromDecision(item.SourceID, out.Decision, p.now())

	zap.L().Debug("pipeline: item processed",
		zap.String("source_id", item.SourceID),
		zap.Int("codes", len(out.Result.Candidates.Codes)),
		zap.Float64("confidence", out.Result.Confidence),
		zap.String("status", string(out.Result.Status)),
		zap.Bool("enhanced", out.Result.EnhancedByFallback),
		zap.Int("diagnostics", len(out.Extraction.Diagnostics)),
	)

	if p.sink != nil {
		saved, err := p.sink.SaveResult(ctx, &out.Result)
		if err != nil {
			return out, eris.Wrapf(err, "pipeline: save result %s", item.SourceID)
		}
		out.Saved = saved
	}
	return out, nil
}
