package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/extractor"
	"proxynexus/pool/model"
)

// SourceLoader supplies the current source profiles. Reloaded at the
// start of every run so edits to sources.json take effect without a
// restart.
type SourceLoader func() ([]*types.SourceProfile, error)

// EndpointSink persists accepted candidates. Implemented by the SQLite
// store; tests plug in an in-memory sink.
type EndpointSink interface {
	UpsertCandidates(ctx context.Context, endpoints []*model.Endpoint) (int, error)
}

// Coordinator fans extraction out across many sources concurrently,
// bounded by a global semaphore and per-source rate limiters, and
// aggregates the heterogeneous results into one stats record. It owns
// the limiter state and the per-run deduplication set.
type Coordinator struct {
	cfg      types.CoordinatorConf
	sources  SourceLoader
	registry *extractor.Registry
	sink     EndpointSink

	sem *semaphore.Weighted

	limiterMu sync.Mutex
	limiters  map[string]*SourceLimiter // keyed by source name, kept across runs
}

// New creates a Coordinator. sink may be nil, in which case accepted
// endpoints are aggregated but not persisted.
func New(cfg types.CoordinatorConf, sources SourceLoader, registry *extractor.Registry, sink EndpointSink) *Coordinator {
	if cfg.MaxConcurrentSources <= 0 {
		cfg.MaxConcurrentSources = 5
	}
	if cfg.DefaultRateLimit <= 0 {
		cfg.DefaultRateLimit = 30
	}
	if cfg.DefaultRetryCount <= 0 {
		cfg.DefaultRetryCount = 3
	}
	if cfg.RetryDelayMillis <= 0 {
		cfg.RetryDelayMillis = 1000
	}
	return &Coordinator{
		cfg:      cfg,
		sources:  sources,
		registry: registry,
		sink:     sink,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentSources)),
		limiters: make(map[string]*SourceLimiter),
	}
}

// sourceRun pairs a source's stats with the endpoints it produced.
type sourceRun struct {
	stats     *model.SourceStats
	endpoints []*model.Endpoint
}

// CoordinateExtraction runs the requested sources (all enabled ones when
// names is empty) and returns the combined stats. One source failing is
// data, not control flow: the run only errors when no source could be
// resolved at all or the sink rejects the batch.
func (c *Coordinator) CoordinateExtraction(ctx context.Context, names []string) (*model.ExtractionStats, error) {
	l := logger.WithComponent("Pool/Coordinator")
	started := time.Now()

	profiles, err := c.resolveSources(names)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no enabled sources to extract from")
	}

	l.Info().Int("sources", len(profiles)).Msg("Starting extraction run...")

	var wg sync.WaitGroup
	runs := make(chan *sourceRun, len(profiles))
	for _, profile := range profiles {
		wg.Add(1)
		go func(p *types.SourceProfile) {
			defer wg.Done()
			runs <- c.runSource(ctx, p)
		}(profile)
	}
	wg.Wait()
	close(runs)

	stats := &model.ExtractionStats{StartedAt: started}

	// Results arrive in completion order; aggregate by host:port
	// identity, never by arrival order. First sighting wins.
	seen := make(map[string]*model.Endpoint)
	var unique []*model.Endpoint
	for run := range runs {
		stats.Sources = append(stats.Sources, run.stats)
		stats.TotalFound += len(run.endpoints)
		for _, e := range run.endpoints {
			if _, dup := seen[e.ID()]; dup {
				continue
			}
			seen[e.ID()] = e
			unique = append(unique, e)
		}
	}
	stats.Unique = len(unique)

	if c.sink != nil && len(unique) > 0 {
		persisted, err := c.sink.UpsertCandidates(ctx, unique)
		if err != nil {
			return nil, fmt.Errorf("failed to persist extracted endpoints: %w", err)
		}
		stats.Persisted = persisted
	}

	stats.Duration = time.Since(started)
	l.Info().
		Int("sources_ok", stats.Succeeded()).
		Int("sources_total", len(stats.Sources)).
		Int("found", stats.TotalFound).
		Int("unique", stats.Unique).
		Dur("duration", stats.Duration).
		Msg("Extraction run finished.")
	return stats, nil
}

// runSource executes one source under the global semaphore, its rate
// limiter, and the retry policy. Failures are folded into the stats
// entry; this function never propagates them.
func (c *Coordinator) runSource(ctx context.Context, profile *types.SourceProfile) *sourceRun {
	l := logger.WithComponent("Pool/Coordinator")
	stats := &model.SourceStats{Source: profile.Name}
	started := time.Now()

	ext, err := c.registry.New(profile)
	if err != nil {
		stats.Error = err.Error()
		stats.Duration = time.Since(started)
		l.Warn().Err(err).Str("source", profile.Name).Msg("Skipping source with bad configuration.")
		return &sourceRun{stats: stats}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		stats.Error = err.Error()
		stats.Duration = time.Since(started)
		return &sourceRun{stats: stats}
	}
	defer c.sem.Release(1)

	limiter := c.limiterFor(profile)
	retries := profile.RetryCount
	if retries <= 0 {
		retries = c.cfg.DefaultRetryCount
	}
	retryDelay := time.Duration(c.cfg.RetryDelayMillis) * time.Millisecond

	var endpoints []*model.Endpoint
	attempts, err := withRetry(ctx, retries, retryDelay, func(ctx context.Context) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		result, err := ext.Extract(ctx)
		if err != nil {
			return err
		}
		endpoints = result
		return nil
	})

	stats.Attempts = attempts
	stats.Duration = time.Since(started)
	if err != nil {
		stats.Error = err.Error()
		l.Warn().Err(err).Str("source", profile.Name).Int("attempts", attempts).Msg("Source extraction failed.")
		return &sourceRun{stats: stats}
	}

	stats.Success = true
	stats.Found = len(endpoints)
	return &sourceRun{stats: stats, endpoints: endpoints}
}

// resolveSources loads the profiles and filters them down to the
// requested set. Unknown or disabled names degrade to a logged skip.
func (c *Coordinator) resolveSources(names []string) ([]*types.SourceProfile, error) {
	l := logger.WithComponent("Pool/Coordinator")

	profiles, err := c.sources()
	if err != nil {
		return nil, fmt.Errorf("failed to load source profiles: %w", err)
	}

	byName := make(map[string]*types.SourceProfile, len(profiles))
	for _, p := range profiles {
		byName[p.Name] = p
	}

	var selected []*types.SourceProfile
	if len(names) == 0 {
		for _, p := range profiles {
			if p.Enabled {
				selected = append(selected, p)
			}
		}
		return selected, nil
	}

	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			l.Warn().Str("source", name).Msg("Requested source not configured, skipping.")
			continue
		}
		if !p.Enabled {
			l.Warn().Str("source", name).Msg("Requested source is disabled, skipping.")
			continue
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// limiterFor returns the source's limiter, creating it on first use.
// Limiters survive across runs so pacing carries over.
func (c *Coordinator) limiterFor(profile *types.SourceProfile) *SourceLimiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	if rl, ok := c.limiters[profile.Name]; ok {
		return rl
	}
	limit := profile.RateLimitPerMinute
	if limit <= 0 {
		limit = c.cfg.DefaultRateLimit
	}
	rl := NewSourceLimiter(limit)
	c.limiters[profile.Name] = rl
	return rl
}
