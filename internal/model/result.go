package model

import (
	"time"
)

// Status is the final disposition of an extraction.
type Status string

const (
	StatusAccepted    Status = "accepted"
	StatusNeedsReview Status = "needs_review"
	StatusRejected    Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAccepted, StatusNeedsReview, StatusRejected:
		return true
	}
	return false
}

// Recommendation is the secondary scorer's suggested disposition.
type Recommendation string

const (
	RecommendAccept Recommendation = "accept"
	RecommendReview Recommendation = "review"
	RecommendReject Recommendation = "reject"
)

// ExtractionResult is the unit of output for one source item. It is built
// once by the result assembler and never modified afterwards; SourceID is the
// key sinks deduplicate on.
type ExtractionResult struct {
	SourceID           string         `json:"source_id"`
	Candidates         CandidateSet   `json:"candidates"`
	Confidence         float64        `json:"confidence"`
	Status             Status         `json:"status"`
	EnhancedByFallback bool           `json:"enhanced_by_fallback"`
	Reasoning          string         `json:"reasoning,omitempty"`
	Recommendation     Recommendation `json:"recommendation,omitempty"`
	ProcessedAt        time.Time      `json:"processed_at"`
}

// SourceRules is a per-source (channel or publisher) overlay of extra
// blacklist terms and custom code patterns.
type SourceRules struct {
	Key            string            `json:"key" yaml:"-"`
	ExtraBlacklist []string          `json:"extra_blacklist,omitempty" yaml:"extra_blacklist"`
	CustomPatterns map[string]string `json:"custom_patterns,omitempty" yaml:"custom_patterns"`
}
