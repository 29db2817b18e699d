// Package confidence scores a filtered CandidateSet into a single confidence
// value in [0,1] with a per-contribution breakdown.
package confidence

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/config"
)

// DefaultWeights returns a config.ScoringConfig with the calibrated defaults.
// Code, context and link weights sum to 1.
func DefaultWeights() config.ScoringConfig {
	return config.ScoringConfig{
		// Contribution weights (sum = 1).
		CodeWeight:    0.65,
		ContextWeight: 0.20,
		LinkWeight:    0.15,
		BestTierBlend: 0.7,

		// Bonuses.
		HighTierBonus: 0.05,
		SponsorBonus:  0.05,
		CoherenceCap:  0.12,

		// Penalties.
		MaxCodes:             5,
		SpamPenaltyBase:      0.15,
		SpamPenaltyStep:      0.03,
		SpamPenaltyCap:       0.25,
		SuspiciousPenalty:    0.10,
		SuspiciousPenaltyCap: 0.20,
		EchoPenalty:          0.15,
		EchoPenaltyCap:       0.30,
	}
}

// WeightSum returns the sum of the three contribution weights.
func WeightSum(c config.ScoringConfig) float64 {
	return c.CodeWeight + c.ContextWeight + c.LinkWeight
}

// ValidateWeights checks that a ScoringConfig is internally consistent.
func ValidateWeights(c config.ScoringConfig) error {
	var errs []string

	nonNegative := map[string]float64{
		"code_weight":            c.CodeWeight,
		"context_weight":         c.ContextWeight,
		"link_weight":            c.LinkWeight,
		"high_tier_bonus":        c.HighTierBonus,
		"sponsor_bonus":          c.SponsorBonus,
		"coherence_cap":          c.CoherenceCap,
		"spam_penalty_base":      c.SpamPenaltyBase,
		"spam_penalty_step":      c.SpamPenaltyStep,
		"spam_penalty_cap":       c.SpamPenaltyCap,
		"suspicious_penalty":     c.SuspiciousPenalty,
		"suspicious_penalty_cap": c.SuspiciousPenaltyCap,
		"echo_penalty":           c.EchoPenalty,
		"echo_penalty_cap":       c.EchoPenaltyCap,
	}
	for name, w := range nonNegative {
		if w < 0 || math.IsNaN(w) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := WeightSum(c)
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.2f", sum))
	}

	// Codes are the dominant signal.
	if c.CodeWeight < c.ContextWeight || c.CodeWeight < c.LinkWeight {
		errs = append(errs, "code_weight must be the largest weight")
	}

	if c.BestTierBlend < 0 || c.BestTierBlend > 1 {
		errs = append(errs, "best_tier_blend must be between 0 and 1")
	}
	if c.MaxCodes < 1 {
		errs = append(errs, "max_codes must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("confidence: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
