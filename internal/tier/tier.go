// Package tier implements the capability tier detector (spec §4.8): it
// probes the three indexers in parallel, caches the result for a TTL,
// and derives a single Tier the retrieval executor uses to pick a
// fallback chain.
package tier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmemory/memd/internal/types"
)

// ProbeFunc reports one indexer's current health. Implementations must
// respect ctx's deadline: the Detector hands all three probes one context
// bounded by probeTimeout and waits for each probe to return, so a probe
// that ignores ctx holds up detection.
type ProbeFunc func(ctx context.Context) types.LayerHealth

// Result is one detection pass's outcome.
type Result struct {
	Tier         types.Tier
	BM25         types.LayerHealth
	Vector       types.LayerHealth
	Topics       types.LayerHealth
	DetectedAtMs int64
}

// Detector runs the three probes and caches the derived tier.
type Detector struct {
	probeBM25    ProbeFunc
	probeVector  ProbeFunc
	probeTopics  ProbeFunc
	probeTimeout time.Duration
	cacheTTL     time.Duration

	mu       sync.Mutex
	cached   *Result
	cachedAt time.Time
}

// New builds a Detector. probeTimeout bounds each individual probe call
// (default 500ms per spec); cacheTTL bounds how long a Detect result is
// reused before the probes are re-run (default 30s per spec).
func New(probeBM25, probeVector, probeTopics ProbeFunc, probeTimeout, cacheTTL time.Duration) *Detector {
	return &Detector{
		probeBM25:    probeBM25,
		probeVector:  probeVector,
		probeTopics:  probeTopics,
		probeTimeout: probeTimeout,
		cacheTTL:     cacheTTL,
	}
}

// Detect returns the current tier, probing fresh only if the cache is
// stale or force is set. Clients may force fresh detection per spec §4.8.
func (d *Detector) Detect(ctx context.Context, force bool) Result {
	d.mu.Lock()
	if !force && d.cached != nil && time.Since(d.cachedAt) < d.cacheTTL {
		result := *d.cached
		d.mu.Unlock()
		return result
	}
	d.mu.Unlock()

	result := d.probeAll(ctx)

	d.mu.Lock()
	d.cached = &result
	d.cachedAt = time.Now()
	d.mu.Unlock()
	return result
}

func (d *Detector) probeAll(ctx context.Context) Result {
	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	var bm25, vector, topics types.LayerHealth
	g, gctx := errgroup.WithContext(probeCtx)
	g.Go(func() error { bm25 = runProbe(gctx, d.probeBM25); return nil })
	g.Go(func() error { vector = runProbe(gctx, d.probeVector); return nil })
	g.Go(func() error { topics = runProbe(gctx, d.probeTopics); return nil })
	_ = g.Wait() // probes never return errors; each reports its own health

	return Result{
		Tier:         deriveTier(topics.Status == types.StatusAvailable, vector.Status == types.StatusAvailable, bm25.Status == types.StatusAvailable),
		BM25:         bm25,
		Vector:       vector,
		Topics:       topics,
		DetectedAtMs: types.NowMs(),
	}
}

func runProbe(ctx context.Context, probe ProbeFunc) types.LayerHealth {
	if probe == nil {
		return types.LayerHealth{Status: types.StatusDisabled}
	}
	if err := ctx.Err(); err != nil {
		return types.LayerHealth{Status: types.StatusUnhealthy, Message: err.Error()}
	}
	return probe(ctx)
}

// deriveTier implements the spec's tier derivation table. The agentic
// layer is always available, so any combination not otherwise matched
// falls through to Agentic rather than failing.
func deriveTier(topicsReady, vectorReady, bm25Ready bool) types.Tier {
	switch {
	case topicsReady && vectorReady && bm25Ready:
		return types.TierFull
	case vectorReady && bm25Ready:
		return types.TierHybrid
	case vectorReady:
		return types.TierSemantic
	case bm25Ready:
		return types.TierKeyword
	default:
		return types.TierAgentic
	}
}
