package validate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// Pipeline runs the four probes per endpoint and scores the result. It
// holds no per-endpoint state; every run produces a fresh, immutable
// outcome.
type Pipeline struct {
	cfg    types.ValidateConf
	prober Prober
	scorer *Scorer
}

// NewPipeline builds a pipeline. A nil prober gets the network default.
func NewPipeline(cfg types.ValidateConf, scoring types.ScoringConf, prober Prober) *Pipeline {
	if prober == nil {
		prober = NewNetworkProber(cfg)
	}
	return &Pipeline{
		cfg:    cfg,
		prober: prober,
		scorer: NewScorer(scoring),
	}
}

// ValidateOne runs all four probes concurrently for one endpoint and
// reduces them to a scored outcome. A probe failing, or panicking, does
// not prevent the other three from completing.
func (p *Pipeline) ValidateOne(ctx context.Context, e *model.Endpoint) *model.ValidationOutcome {
	started := time.Now()
	outcome := &model.ValidationOutcome{
		Endpoint:   e,
		MeasuredAt: started.UTC(),
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		defer recoverProbe(&outcome.Connectivity, func(msg string) *model.ConnectivityResult {
			return &model.ConnectivityResult{Error: msg}
		})
		outcome.Connectivity = p.prober.Connectivity(ctx, e)
	}()
	go func() {
		defer wg.Done()
		defer recoverProbe(&outcome.Speed, func(msg string) *model.SpeedResult {
			return &model.SpeedResult{Error: msg}
		})
		outcome.Speed = p.prober.Speed(ctx, e)
	}()
	go func() {
		defer wg.Done()
		defer recoverProbe(&outcome.Geo, func(msg string) *model.GeoResult {
			return &model.GeoResult{Error: msg}
		})
		outcome.Geo = p.prober.Geolocation(ctx, e)
	}()
	go func() {
		defer wg.Done()
		defer recoverProbe(&outcome.Anonymity, func(msg string) *model.AnonymityResult {
			return &model.AnonymityResult{Level: model.AnonymityUnknown, Error: msg}
		})
		outcome.Anonymity = p.prober.Anonymity(ctx, e)
	}()
	wg.Wait()

	outcome.Score = p.scorer.Score(outcome)
	outcome.Acceptable = p.scorer.Acceptable(outcome.Score)
	outcome.Duration = time.Since(started)
	return outcome
}

// ValidateBatch validates endpoints concurrently under a semaphore and
// returns one outcome per input, index-aligned. A panic while validating
// one endpoint becomes a zero-score failed outcome; it never aborts the
// batch.
func (p *Pipeline) ValidateBatch(ctx context.Context, endpoints []*model.Endpoint, maxConcurrent int) []*model.ValidationOutcome {
	l := logger.WithComponent("Pool/Validate")
	if len(endpoints) == 0 {
		return nil
	}
	if maxConcurrent <= 0 {
		maxConcurrent = p.cfg.MaxConcurrent
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	l.Info().Int("count", len(endpoints)).Int("concurrency", maxConcurrent).Msg("Starting validation batch...")

	outcomes := make([]*model.ValidationOutcome, len(endpoints))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)

	for i, e := range endpoints {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, endpoint *model.Endpoint) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					outcomes[idx] = model.Failed(endpoint, time.Now().UTC(), fmt.Sprintf("validation panic: %v", r))
				}
			}()

			outcomes[idx] = p.ValidateOne(ctx, endpoint)
		}(i, e)
	}
	wg.Wait()

	accepted := 0
	for _, o := range outcomes {
		if o != nil && o.Acceptable {
			accepted++
		}
	}
	l.Info().Int("accepted", accepted).Int("total", len(outcomes)).Msg("Validation batch finished.")
	return outcomes
}

// recoverProbe converts a probe panic into a failed result so the other
// probes keep their measurements.
func recoverProbe[T any](target *T, failed func(msg string) T) {
	if r := recover(); r != nil {
		*target = failed(fmt.Sprintf("probe panic: %v", r))
	}
}
