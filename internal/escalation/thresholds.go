package escalation

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/model"
)

// Thresholds maps a confidence to a final status and decides when the
// secondary scorer is consulted. AI is independent of the other two.
type Thresholds struct {
	Accept float64 `json:"accept"`
	Review float64 `json:"review"`
	AI     float64 `json:"ai"`
}

// DefaultThresholds returns accept 0.6, review 0.3, ai 0.4.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 0.6, Review: 0.3, AI: 0.4}
}

// Validate checks that every threshold is in [0,1] and review <= accept.
func (t Thresholds) Validate() error {
	var errs []string
	for name, v := range map[string]float64{"accept": t.Accept, "review": t.Review, "ai": t.AI} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s threshold %v out of [0,1]", name, v))
		}
	}
	if t.Review > t.Accept {
		errs = append(errs, "review threshold must be <= accept threshold")
	}
	if len(errs) > 0 {
		return eris.Errorf("escalation: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Status maps confidence to exactly one status. NaN is treated as 0.
func (t Thresholds) Status(confidence float64) model.Status {
	switch {
	case math.IsNaN(confidence):
		return model.StatusRejected
	case confidence >= t.Accept:
		return model.StatusAccepted
	case confidence >= t.Review:
		return model.StatusNeedsReview
	default:
		return model.StatusRejected
	}
}

// ShouldEscalate reports whether confidence is low enough to consult the
// secondary scorer.
func (t Thresholds) ShouldEscalate(confidence float64) bool {
	return math.IsNaN(confidence) || confidence < t.AI
}
