// Package escalation decides when a low-confidence extraction is sent to the
// secondary scorer, bounds and rate limits those calls, and falls back to the
// heuristic result when the scorer fails.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/promo-scout/internal/config"
	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/resilience"
)

// Request is the payload sent to a secondary scorer. It is also what the
// failure log stores so a failed call can be replayed.
type Request struct {
	SourceID            string             `json:"source_id"`
	Excerpt             string             `json:"text_excerpt"`
	Candidates          model.CandidateSet `json:"candidate_set"`
	HeuristicConfidence float64            `json:"heuristic_confidence"`
}

// Verdict is a secondary scorer's answer. A nil ValidCodes keeps every
// candidate code; an empty non-nil slice keeps none.
type Verdict struct {
	Confidence     float64              `json:"confidence"`
	ValidCodes     []string             `json:"valid_codes"`
	Reasoning      string               `json:"reasoning"`
	Recommendation model.Recommendation `json:"recommendation"`
}

// Validate rejects verdicts that cannot be applied.
func (v *Verdict) Validate() error {
	if v == nil {
		return eris.New("escalation: empty verdict")
	}
	if math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
		return eris.Errorf("escalation: confidence %v out of [0,1]", v.Confidence)
	}
	switch v.Recommendation {
	case "", model.RecommendAccept, model.RecommendReview, model.RecommendReject:
	default:
		return eris.Errorf("escalation: unknown recommendation %q", v.Recommendation)
	}
	return nil
}

// Scorer is a secondary (LLM-backed) scorer.
type Scorer interface {
	Name() string
	Score(ctx context.Context, req Request) (*Verdict, error)
}

// FailureLog receives failed escalations.
type FailureLog interface {
	AppendFailure(ctx context.Context, f *model.EscalationFailure) error
}

// Config tunes the controller.
type Config struct {
	Enabled           bool
	Thresholds        Thresholds
	Concurrency       int
	RequestsPerMinute int
	Burst             int
	Timeout           time.Duration
	ExcerptChars      int
	MaxRetries        int
	RetryBackoff      time.Duration
	Retry             resilience.RetryPolicy
	Breaker           resilience.BreakerConfig
}

// ConfigFrom builds a controller Config from application config.
func ConfigFrom(cfg *config.Config) Config {
	e := cfg.Escalation
	retry, breaker := resilience.PoliciesFrom(e)
	return Config{
		Enabled: e.Enabled,
		Thresholds: Thresholds{
			Accept: e.AcceptThreshold,
			Review: e.ReviewThreshold,
			AI:     e.AIThreshold,
		},
		Concurrency:       e.Concurrency,
		RequestsPerMinute: e.RequestsPerMinute,
		Burst:             e.Burst,
		Timeout:           time.Duration(e.TimeoutSecs) * time.Second,
		ExcerptChars:      e.ExcerptChars,
		MaxRetries:        cfg.Failures.MaxRetries,
		RetryBackoff:      time.Duration(cfg.Failures.RetryBackoffMins) * time.Minute,
		Retry:             retry,
		Breaker:           breaker,
	}
}

func (c Config) withDefaults() Config {
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 50
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = 800
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// Input is the heuristic outcome for one source item.
type Input struct {
	SourceID   string
	Text       string
	Candidates model.CandidateSet
	Confidence float64
}

// Decision is the controller's final answer for one item. When the scorer
// was not consulted, or failed, it carries the heuristic values unchanged.
type Decision struct {
	Candidates         model.CandidateSet
	Confidence         float64
	Status             model.Status
	EnhancedByFallback bool
	Reasoning          string
	Recommendation     model.Recommendation
	// Attempted is true when the secondary scorer was consulted.
	Attempted bool
	// Err is the escalation failure, if any. It never fails the item.
	Err error
}

// Controller routes items to the secondary scorer. One Controller is shared
// by every worker of a run so that the concurrency bound, rate limit and
// circuit breaker are global.
type Controller struct {
	cfg      Config
	scorer   Scorer
	failures FailureLog
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	now      func() time.Time
}

// NewController creates a Controller. scorer may be nil, in which case every
// item keeps its heuristic result. failures may be nil; failures are then
// only logged.
func NewController(cfg Config, scorer Scorer, failures FailureLog) *Controller {
	cfg = cfg.withDefaults()
	breakerCfg := cfg.Breaker
	breakerCfg.OnChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("escalation: circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &Controller{
		cfg:      cfg,
		scorer:   scorer,
		failures: failures,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.Burst),
		breaker:  resilience.NewBreaker(breakerCfg),
		now:      time.Now,
	}
}

// Thresholds returns the thresholds in use.
func (c *Controller) Thresholds() Thresholds { return c.cfg.Thresholds }

// BreakerState reports the secondary scorer circuit state.
func (c *Controller) BreakerState() resilience.CircuitState { return c.breaker.State() }

// ShouldEscalate reports whether in goes to the secondary scorer. Items with
// neither text nor candidates have nothing to validate.
func (c *Controller) ShouldEscalate(in Input) bool {
	if !c.cfg.Enabled || c.scorer == nil {
		return false
	}
	if in.Text == "" && in.Candidates.Empty() {
		return false
	}
	return c.cfg.Thresholds.ShouldEscalate(in.Confidence)
}

// Resolve returns the final decision for in, consulting the secondary scorer
// when the heuristic confidence is below the AI threshold. A failed call is
// appended to the failure log and the heuristic decision stands.
func (c *Controller) Resolve(ctx context.Context, in Input) Decision {
	d := Decision{
		Candidates: in.Candidates,
		Confidence: in.Confidence,
		Status:     c.cfg.Thresholds.Status(in.Confidence),
	}
	if !c.ShouldEscalate(in) {
		return d
	}

	req := Request{
		SourceID:            in.SourceID,
		Excerpt:             Excerpt(in.Text, c.cfg.ExcerptChars),
		Candidates:          in.Candidates,
		HeuristicConfidence: in.Confidence,
	}
	d.Attempted = true

	v, err := c.call(ctx, req)
	if err != nil {
		d.Err = err
		zap.L().Warn("escalation: secondary scorer failed, keeping heuristic result",
			zap.String("source_id", in.SourceID),
			zap.String("kind", string(Classify(err))),
			zap.Error(err),
		)
		c.recordFailure(ctx, req, err)
		return d
	}
	return c.apply(d, v)
}

// Retry replays a failure log entry. Unlike Resolve it does not append a new
// failure; the caller updates the existing entry.
func (c *Controller) Retry(ctx context.Context, f *model.EscalationFailure) (Decision, error) {
	if c.scorer == nil {
		return Decision{}, eris.New("escalation: no secondary scorer configured")
	}
	var req Request
	if err := json.Unmarshal(f.Request, &req); err != nil {
		return Decision{}, eris.Wrapf(err, "escalation: decode failure %s", f.ID)
	}
	d := Decision{
		Candidates: req.Candidates,
		Confidence: req.HeuristicConfidence,
		Status:     c.cfg.Thresholds.Status(req.HeuristicConfidence),
		Attempted:  true,
	}
	v, err := c.call(ctx, req)
	if err != nil {
		d.Err = err
		return d, err
	}
	return c.apply(d, v), nil
}

// call waits for a concurrency slot and a rate limit token, then runs the
// scorer through the retry policy and circuit breaker. Once started, a call
// is not canceled with ctx; it completes or times out.
func (c *Controller) call(ctx context.Context, req Request) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCanceled, Err: err}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &Error{Kind: KindCanceled, Err: err}
	}
	defer c.sem.Release(1)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindCanceled, Err: err}
	}

	policy := c.cfg.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		zap.L().Warn("escalation: retrying secondary scorer",
			zap.String("scorer", c.scorer.Name()),
			zap.String("source_id", req.SourceID),
			zap.Int("attempt", attempt),
			zap.Bool("overloaded", resilience.IsOverloaded(err)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	v, err := resilience.Retry(context.WithoutCancel(ctx), policy, func(ctx context.Context, attempt int) (*Verdict, error) {
		if attempt > 0 {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*Verdict, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
			v, err := c.scorer.Score(callCtx, req)
			if err != nil {
				return nil, resilience.AsFailure(err)
			}
			if err := v.Validate(); err != nil {
				return nil, NewParseError(err)
			}
			return v, nil
		})
	})
	if err != nil {
		return nil, resilience.AsFailure(err)
	}
	return v, nil
}

// apply replaces the heuristic confidence with the verdict's and re-derives
// the status. Codes the scorer did not confirm are dropped.
func (c *Controller) apply(d Decision, v *Verdict) Decision {
	if v.ValidCodes != nil {
		d.Candidates = d.Candidates.RetainCodes(v.ValidCodes)
	}
	d.Confidence = v.Confidence
	d.Status = c.cfg.Thresholds.Status(v.Confidence)
	d.EnhancedByFallback = true
	d.Reasoning = v.Reasoning
	d.Recommendation = v.Recommendation
	return d
}

func (c *Controller) recordFailure(ctx context.Context, req Request, err error) {
	if c.failures == nil {
		return
	}
	payload, mErr := json.Marshal(req)
	if mErr != nil {
		zap.L().Error("escalation: encode failure request", zap.String("source_id", req.SourceID), zap.Error(mErr))
		return
	}
	kind := Classify(err)
	now := c.now().UTC()
	meta := map[string]string{
		"scorer":               c.scorer.Name(),
		"heuristic_confidence": strconv.FormatFloat(req.HeuristicConfidence, 'f', 4, 64),
		"codes":                fmt.Sprint(len(req.Candidates.Codes)),
	}
	var apiErr *resilience.APIError
	if errors.As(err, &apiErr) {
		meta["http_status"] = strconv.Itoa(apiErr.Status)
	}
	f := &model.EscalationFailure{
		ID:           uuid.NewString(),
		SourceID:     req.SourceID,
		Request:      payload,
		Error:        err.Error(),
		Kind:         string(kind),
		Transient:    kind.Transient(),
		Metadata:     meta,
		MaxRetries:   c.cfg.MaxRetries,
		NextRetryAt:  resilience.NextRetryAt(now, 0, c.cfg.RetryBackoff),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if aErr := c.failures.AppendFailure(context.WithoutCancel(ctx), f); aErr != nil {
		zap.L().Error("escalation: append failure log",
			zap.String("source_id", req.SourceID),
			zap.Error(aErr),
		)
	}
}

// Excerpt returns at most n runes from the start of text.
func Excerpt(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
