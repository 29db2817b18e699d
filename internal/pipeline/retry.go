package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/promo-scout/internal/escalation"
	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/resilience"
	"github.com/sells-group/promo-scout/internal/store"
)

// RetryOptions tunes one pass of the failure log retry driver.
type RetryOptions struct {
	// Limit caps the entries drained in one pass. Zero means the store default.
	Limit int
	// Kind restricts the pass to one failure kind.
	Kind string
	// TransientOnly skips entries whose failure is not expected to clear.
	TransientOnly bool
	Concurrency   int
	// Backoff is the base delay used to reschedule an entry that fails again.
	Backoff time.Duration
}

// RetryStats summarizes one retry pass.
type RetryStats struct {
	Due         int `json:"due"`
	Recovered   int `json:"recovered"`
	Rescheduled int `json:"rescheduled"`
	Exhausted   int `json:"exhausted"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

// Retrier drains due entries from the failure log. A recovered entry
// replaces the stored heuristic result and is removed from the log; an
// entry that fails again has its retry count bumped and is rescheduled.
type Retrier struct {
	controller *escalation.Controller
	failures   store.FailureLog
	sink       store.Sink
	now        func() time.Time
}

// NewRetrier creates a Retrier.
func NewRetrier(ctrl *escalation.Controller, failures store.FailureLog, sink store.Sink) *Retrier {
	return &Retrier{controller: ctrl, failures: failures, sink: sink, now: time.Now}
}

// Run performs one pass. Per-entry errors are logged and counted; only a
// failure to list the log is returned.
func (r *Retrier) Run(ctx context.Context, opts RetryOptions) (RetryStats, error) {
	var stats RetryStats
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	due, err := r.failures.ListFailures(ctx, model.FailureFilter{
		Kind:    opts.Kind,
		DueOnly: true,
		Now:     r.now(),
		Limit:   opts.Limit,
	})
	if err != nil {
		return stats, eris.Wrap(err, "pipeline: list due failures")
	}
	stats.Due = len(due)

	var recovered, rescheduled, exhausted, skipped, errs atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, f := range due {
		if opts.TransientOnly && !f.Transient {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			switch outcome, err := r.retryOne(gctx, &f, opts.Backoff); {
			case err != nil:
				errs.Add(1)
				zap.L().Error("pipeline: retry entry failed",
					zap.String("failure_id", f.ID),
					zap.String("source_id", f.SourceID),
					zap.Error(err),
				)
			case outcome == retryRecovered:
				recovered.Add(1)
			case outcome == retryExhausted:
				exhausted.Add(1)
			default:
				rescheduled.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Recovered = int(recovered.Load())
	stats.Rescheduled = int(rescheduled.Load())
	stats.Exhausted = int(exhausted.Load())
	stats.Skipped = int(skipped.Load())
	stats.Errors = int(errs.Load())

	zap.L().Info("pipeline: retry pass complete",
		zap.Int("due", stats.Due),
		zap.Int("recovered", stats.Recovered),
		zap.Int("rescheduled", stats.Rescheduled),
		zap.Int("exhausted", stats.Exhausted),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

type retryOutcome int

const (
	retryRecovered retryOutcome = iota
	retryRescheduled
	retryExhausted
)

func (r *Retrier) retryOne(ctx context.Context, f *model.EscalationFailure, backoff time.Duration) (retryOutcome, error) {
	d, err := r.controller.Retry(ctx, f)
	if err != nil {
		now := r.now()
		next := resilience.NextRetryAt(now, f.RetryCount+1, backoff)
		if incErr := r.failures.IncrementFailureRetry(ctx, f.ID, next, err.Error()); incErr != nil {
			return retryRescheduled, eris.Wrapf(incErr, "pipeline: reschedule failure %s", f.ID)
		}
		if f.RetryCount+1 >= f.MaxRetries {
			zap.L().Warn("pipeline: failure retries exhausted",
				zap.String("failure_id", f.ID),
				zap.String("source_id", f.SourceID),
				zap.Int("retry_count", f.RetryCount+1),
			)
			return retryExhausted, nil
		}
		return retryRescheduled, nil
	}

	result := fromDecision(f.SourceID, d, r.now())
	if r.sink != nil {
		if err := r.sink.ReplaceResult(ctx, &result); err != nil {
			return retryRecovered, eris.Wrapf(err, "pipeline: replace result %s", f.SourceID)
		}
	}
	if err := r.failures.RemoveFailure(ctx, f.ID); err != nil {
		return retryRecovered, eris.Wrapf(err, "pipeline: remove failure %s", f.ID)
	}
	zap.L().Info("pipeline: failure recovered",
		zap.String("failure_id", f.ID),
		zap.String("source_id", f.SourceID),
		zap.Float64("confidence", result.Confidence),
		zap.String("status", string(result.Status)),
	)
	return retryRecovered, nil
}
