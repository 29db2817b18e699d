package pipeline

import (
	"time"

	"github.com/sells-group/promo-scout/internal/escalation"
	"github.com/sells-group/promo-scout/internal/model"
)

// Detail sets an optional field of an assembled result.
type Detail func(*model.ExtractionResult)

// WithVerdict records the secondary scorer's reasoning and recommendation.
func WithVerdict(reasoning string, rec model.Recommendation) Detail {
	return func(r *model.ExtractionResult) {
		r.Reasoning = reasoning
		r.Recommendation = rec
	}
}

// ProcessedAt stamps the result.
func ProcessedAt(t time.Time) Detail {
	return func(r *model.ExtractionResult) { r.ProcessedAt = t.UTC() }
}

// Assemble shapes the output record for one source item. It copies the
// candidate set so the result shares no state with its inputs. It does not
// decide status or compute confidence.
func Assemble(sourceID string, set model.CandidateSet, confidence float64, status model.Status, enhanced bool, details ...Detail) model.ExtractionResult {
	r := model.ExtractionResult{
		SourceID:           sourceID,
		Candidates:         set.Clone(),
		Confidence:         confidence,
		Status:             status,
		EnhancedByFallback: enhanced,
	}
	for _, d := range details {
		d(&r)
	}
	return r
}

// fromDecision assembles the result of a resolved escalation decision.
func fromDecision(sourceID string, d escalation.Decision, at time.Time) model.ExtractionResult {
	return Assemble(sourceID, d.Candidates, d.Confidence, d.Status, d.EnhancedByFallback,
		WithVerdict(d.Reasoning, d.Recommendation),
		ProcessedAt(at),
	)
}
