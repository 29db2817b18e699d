package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/promo-scout/internal/model"
)

// DefaultBatchConcurrency bounds in-flight items when the caller passes zero.
const DefaultBatchConcurrency = 8

// BatchStats summarizes a batch run.
type BatchStats struct {
	Total       int `json:"total"`
	Accepted    int `json:"accepted"`
	NeedsReview int `json:"needs_review"`
	Rejected    int `json:"rejected"`
	Enhanced    int `json:"enhanced"`
	Escalated   int `json:"escalated"`
	// EscalationErrors counts items whose secondary scoring failed and kept
	// the heuristic result.
	EscalationErrors int `json:"escalation_errors"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
}

// ProcessBatch runs items concurrently with at most concurrency in flight and
// returns one outcome per item in input order. Items are independent: an
// error or panic in one is recorded in its Outcome.Err and never cancels the
// others. Once ctx is done, items that have not started are marked with the
// context error; items already running finish.
func (p *Processor) ProcessBatch(ctx context.Context, items []Item, concurrency int) []Outcome {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	outcomes := make([]Outcome, len(items))

	var mu sync.Mutex
	report := func(o Outcome) {
		if p.observer == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		p.observer(o)
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, item := range items {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Item: item, Err: eris.Wrap(ctx.Err(), "pipeline: batch canceled")}
			continue
		}
		g.Go(func() error {
			outcomes[i] = p.processIsolated(ctx, item)
			report(outcomes[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// processIsolated runs Process and converts a panic into the item's error.
func (p *Processor) processIsolated(ctx context.Context, item Item) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: item panicked",
				zap.String("source_id", item.SourceID),
				zap.Any("panic", r),
			)
			out = Outcome{Item: item, Err: eris.Errorf("pipeline: item %s panicked: %v", item.SourceID, r)}
		}
	}()

	out, err := p.Process(ctx, item)
	if err != nil {
		zap.L().Error("pipeline: item failed",
			zap.String("source_id", item.SourceID),
			zap.Error(err),
		)
		out.Err = err
	}
	return out
}

// Stats tallies outcomes.
func Stats(outcomes []Outcome) BatchStats {
	s := BatchStats{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			s.Failed++
			continue
		case o.Skipped:
			s.Skipped++
			continue
		}
		switch o.Result.Status {
		case model.StatusAccepted:
			s.Accepted++
		case model.StatusNeedsReview:
			s.NeedsReview++
		default:
			s.Rejected++
		}
		if o.Result.EnhancedByFallback {
			s.Enhanced++
		}
		if o.Decision.Attempted {
			s.Escalated++
			if o.Decision.Err != nil {
				s.EscalationErrors++
			}
		}
	}
	return s
}
