// Package store persists extraction results and the escalation failure log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/promo-scout/internal/model"
)

// ResultFilter specifies criteria for listing results.
type ResultFilter struct {
	Status   model.Status `json:"status,omitempty"`
	Enhanced *bool        `json:"enhanced,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
}

// Summary aggregates stored results.
type Summary struct {
	Total         int                  `json:"total"`
	ByStatus      map[model.Status]int `json:"by_status"`
	Enhanced      int                  `json:"enhanced"`
	AvgConfidence float64              `json:"avg_confidence"`
}

// Sink receives extraction results keyed by source ID.
type Sink interface {
	// Exists reports whether a result for sourceID has been stored.
	Exists(ctx context.Context, sourceID string) (bool, error)
	// SaveResult stores r unless a result with the same source ID already
	// exists. It reports whether r was written.
	SaveResult(ctx context.Context, r *model.ExtractionResult) (bool, error)
	// ReplaceResult stores r, overwriting any existing result. Used when a
	// retried escalation improves an earlier result.
	ReplaceResult(ctx context.Context, r *model.ExtractionResult) error
	ListResults(ctx context.Context, filter ResultFilter) ([]model.ExtractionResult, error)
	Summarize(ctx context.Context) (*Summary, error)
	Close() error
}

// FailureLog stores failed escalations for later retry.
type FailureLog interface {
	AppendFailure(ctx context.Context, f *model.EscalationFailure) error
	ListFailures(ctx context.Context, filter model.FailureFilter) ([]model.EscalationFailure, error)
	IncrementFailureRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveFailure(ctx context.Context, id string) error
	CountFailures(ctx context.Context) (int, error)
}

// Store is a database backend that serves as both sink and failure log.
type Store interface {
	Sink
	FailureLog
	Migrate(ctx context.Context) error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func newSummary() *Summary {
	return &Summary{ByStatus: map[model.Status]int{
		model.StatusAccepted:    0,
		model.StatusNeedsReview: 0,
		model.StatusRejected:    0,
	}}
}
