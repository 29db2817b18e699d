// Package monitoring collects health snapshots from the result sink, the
// escalation failure log and the secondary scorer's circuit breaker, and
// raises webhook alerts when they cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/resilience"
	"github.com/sells-group/promo-scout/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Stored results.
	ResultsTotal  int     `json:"results_total"`
	Accepted      int     `json:"accepted"`
	NeedsReview   int     `json:"needs_review"`
	Rejected      int     `json:"rejected"`
	Enhanced      int     `json:"enhanced"`
	ReviewRate    float64 `json:"review_rate"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Escalation failure log.
	FailureDepth int `json:"failure_depth"`
	FailuresDue  int `json:"failures_due"`

	// BreakerState is empty when no secondary scorer is wired.
	BreakerState string `json:"breaker_state,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// BreakerSource reports the secondary scorer's circuit state.
type BreakerSource interface {
	BreakerState() resilience.CircuitState
}

// Collector gathers metrics from the sink and failure log.
type Collector struct {
	sink     store.Sink
	failures store.FailureLog
	breaker  BreakerSource
	now      func() time.Time
}

// NewCollector creates a new metrics collector. failures and breaker may be
// nil.
func NewCollector(sink store.Sink, failures store.FailureLog, breaker BreakerSource) *Collector {
	return &Collector{sink: sink, failures: failures, breaker: breaker, now: time.Now}
}

// Collect gathers a snapshot of system metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{CollectedAt: now}

	sum, err := c.sink.Summarize(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: summarize results")
	}
	snap.ResultsTotal = sum.Total
	snap.Accepted = sum.ByStatus[model.StatusAccepted]
	snap.NeedsReview = sum.ByStatus[model.StatusNeedsReview]
	snap.Rejected = sum.ByStatus[model.StatusRejected]
	snap.Enhanced = sum.Enhanced
	snap.AvgConfidence = sum.AvgConfidence
	if sum.Total > 0 {
		snap.ReviewRate = float64(snap.NeedsReview) / float64(sum.Total)
	}

	if c.failures != nil {
		depth, err := c.failures.CountFailures(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count failures")
		}
		snap.FailureDepth = depth

		due, err := c.failures.ListFailures(ctx, model.FailureFilter{DueOnly: true, Now: now, Limit: depth + 1})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list due failures")
		}
		snap.FailuresDue = len(due)
	}

	if c.breaker != nil {
		snap.BreakerState = c.breaker.BreakerState().String()
	}
	return snap, nil
}
