package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promo-scout/internal/confidence"
	"github.com/sells-group/promo-scout/internal/config"
	"github.com/sells-group/promo-scout/internal/escalation"
	"github.com/sells-group/promo-scout/internal/extract"
	"github.com/sells-group/promo-scout/internal/filter"
	"github.com/sells-group/promo-scout/internal/monitoring"
	"github.com/sells-group/promo-scout/internal/overlay"
	"github.com/sells-group/promo-scout/internal/pipeline"
	"github.com/sells-group/promo-scout/internal/secondary"
	"github.com/sells-group/promo-scout/internal/store"
	anthropicpkg "github.com/sells-group/promo-scout/pkg/anthropic"
)

// scoutEnv holds everything the commands share: the backend, the escalation
// controller and the processor built on top of them.
type scoutEnv struct {
	Backend    *store.Backend // nil when the command runs without a store
	Overlays   *overlay.Registry
	Controller *escalation.Controller
	Processor  *pipeline.Processor
}

// Close releases resources held by the environment.
func (e *scoutEnv) Close() {
	if e.Backend != nil {
		if err := e.Backend.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// Collector builds a monitoring collector over the backend.
func (e *scoutEnv) Collector() *monitoring.Collector {
	return monitoring.NewCollector(e.Backend.Sink, e.Backend.Failures, e.Controller)
}

type envOptions struct {
	mode         string
	store        bool
	skipExisting bool
	observer     pipeline.Observer
	// scorer overrides the configured secondary scorer.
	scorer escalation.Scorer
}

// initEnv validates config for opts.mode and wires the pipeline. Callers
// should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, opts envOptions) (*scoutEnv, error) {
	if err := c.Validate(opts.mode); err != nil {
		return nil, err
	}
	if err := confidence.ValidateWeights(c.Scoring); err != nil {
		return nil, err
	}

	overlays, err := overlay.Load(c.Overlays.Path)
	if err != nil {
		return nil, err
	}

	env := &scoutEnv{Overlays: overlays}
	if opts.store {
		backend, err := store.Open(ctx, c.Store)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		env.Backend = backend
	}

	scorer := opts.scorer
	if scorer == nil {
		scorer = newSecondaryScorer(c)
	}
	var failures escalation.FailureLog
	if env.Backend != nil {
		failures = env.Backend.Failures
	}
	env.Controller = escalation.NewController(escalation.ConfigFrom(c), scorer, failures)

	f := filter.New(
		filter.WithLengthWindow(c.Extract.MinCodeLength, c.Extract.MaxCodeLength),
		filter.WithBlacklist(c.Extract.ExtraBlacklist...),
	)
	ex := extract.New(f, extract.Config{
		LowTierGate:     c.Extract.LowTierGate,
		MaxFlatDiscount: c.Extract.MaxFlatDiscount,
	})

	popts := []pipeline.Option{pipeline.WithOverlays(overlays)}
	if env.Backend != nil {
		popts = append(popts, pipeline.WithSink(env.Backend.Sink))
	}
	if opts.skipExisting {
		popts = append(popts, pipeline.SkipExisting())
	}
	if opts.observer != nil {
		popts = append(popts, pipeline.WithObserver(opts.observer))
	}
	env.Processor = pipeline.New(ex, confidence.New(c.Scoring), env.Controller, popts...)

	zap.L().Debug("environment ready",
		zap.String("mode", opts.mode),
		zap.Bool("store", env.Backend != nil),
		zap.Int("overlays", overlays.Len()),
		zap.Bool("escalation", scorer != nil),
	)
	return env, nil
}

// newSecondaryScorer returns nil when escalation is off or no key is set.
func newSecondaryScorer(c *config.Config) escalation.Scorer {
	if !c.Escalation.Enabled {
		return nil
	}
	if c.Anthropic.Key == "" {
		zap.L().Warn("escalation enabled but anthropic.key is not set; low-confidence results will not be escalated")
		return nil
	}
	return secondary.New(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic)
}
