// Package retrieval implements the fallback-chain executor (spec §4.9):
// given an intent and a capability tier, it walks an ordered list of
// retrieval layers in one of three execution modes, enforces stop
// conditions along the way, and returns an explainable result.
package retrieval

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentmemory/memd/internal/types"
)

// errRPCBudgetExhausted marks a layer call skipped because Stop.MaxRPCCalls
// was already spent by earlier calls in this Execute.
var errRPCBudgetExhausted = errors.New("rpc call budget exhausted")

// LayerFunc executes one retrieval layer (BM25, Vector, or Topics) and
// returns results ordered best-first.
type LayerFunc func(ctx context.Context, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error)

// Executor walks fallback chains over the three indexed layers plus the
// always-available agentic beam search.
type Executor struct {
	bm25    LayerFunc
	vector  LayerFunc
	topics  LayerFunc
	agentic LayerFunc
	weights map[types.Layer]float64
}

// New builds an Executor. weights are per-layer RRF weights in [0,1]
// used only by the Hybrid layer's BM25+Vector blend; a missing entry
// defaults to 1.
func New(bm25, vector, topics, agentic LayerFunc, weights map[types.Layer]float64) *Executor {
	return &Executor{bm25: bm25, vector: vector, topics: topics, agentic: agentic, weights: weights}
}

// Request is one retrieval call's full input.
type Request struct {
	Query  string
	Intent types.Intent
	Tier   types.Tier
	Mode   types.ExecutionMode
	Stop   types.StopConditions
	Window *types.TimeWindow
}

// Execute runs req's fallback chain in the requested mode and returns an
// ExecutionResult carrying the merged results plus full explainability
// bookkeeping.
func (e *Executor) Execute(ctx context.Context, req Request) types.ExecutionResult {
	start := time.Now()

	runCtx := ctx
	if req.Stop.TimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.Stop.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	runCtx = withCallBudget(runCtx, newCallBudget(req.Stop.MaxRPCCalls))
	if req.Stop.MaxDepth > 0 {
		runCtx = withMaxDepth(runCtx, req.Stop.MaxDepth)
	}

	chain := chainFor(req.Intent, req.Tier)
	beamWidth := clampBeamWidth(req.Stop.BeamWidth)
	limit := req.Stop.MaxNodes
	if limit <= 0 {
		limit = 20
	}

	var result types.ExecutionResult
	switch req.Mode {
	case types.ModeParallel:
		result = e.runParallel(runCtx, req, chain, beamWidth, limit)
	case types.ModeHybrid:
		result = e.runParallel(runCtx, req, chain, beamWidth, limit)
		result.Mode = types.ModeHybrid
		if topScore(result.Results) >= req.Stop.MinConfidence {
			result.Explanation = "hybrid: strong winner at " + string(result.PrimaryLayer)
		} else {
			result.Explanation = "hybrid: no strong winner, returning parallel blend (" + result.Explanation + ")"
		}
	default:
		result = e.runSequential(runCtx, req, chain, limit)
	}

	result.Results = applyTokenBudget(&result, req.Stop.MaxTokens)
	result.TotalTimeMs = time.Since(start).Milliseconds()
	return result
}

// estimatedTokens approximates one result's footprint in an LLM context
// window: about 4 bytes per token for the preview text, plus a fixed
// allowance for the id/type/score fields a caller renders alongside it.
func estimatedTokens(r types.RetrievalResult) int {
	const perResultOverhead = 12
	return len(r.MatchedPreview)/4 + perResultOverhead
}

// applyTokenBudget enforces Stop.MaxTokens: results are kept best-first
// until the next one would push the running estimate over budget. At
// least one result is always kept. A truncation is recorded into
// result.PerLayer so it surfaces through BuildExplainability's
// BoundsHit the same way a skipped layer does.
func applyTokenBudget(result *types.ExecutionResult, maxTokens int) []types.RetrievalResult {
	if maxTokens <= 0 || len(result.Results) == 0 {
		return result.Results
	}
	spent := 0
	kept := result.Results[:0:0]
	for i, r := range result.Results {
		cost := estimatedTokens(r)
		if i > 0 && spent+cost > maxTokens {
			result.PerLayer = append(result.PerLayer, types.LayerRecord{
				Skipped: "max_tokens budget truncated results to " + strconv.Itoa(len(kept)),
			})
			break
		}
		spent += cost
		kept = append(kept, r)
	}
	return kept
}

func (e *Executor) runSequential(ctx context.Context, req Request, chain []types.Layer, limit int) types.ExecutionResult {
	var perLayer []types.LayerRecord
	var attempted []types.Layer
	var candidateResults []types.RetrievalResult
	var candidateLayer types.Layer

	deadline, hasDeadline := ctx.Deadline()

	for _, layer := range chain {
		if ctx.Err() != nil {
			perLayer = append(perLayer, types.LayerRecord{Layer: layer, Skipped: "overall deadline exceeded"})
			continue
		}

		layerCtx := ctx
		var cancel context.CancelFunc
		if hasDeadline {
			layerCtx, cancel = context.WithDeadline(ctx, deadline)
		}
		layerStart := time.Now()
		results, err := e.runLayer(layerCtx, layer, req.Query, req.Window, limit)
		if cancel != nil {
			cancel()
		}

		record := types.LayerRecord{
			Layer:       layer,
			Attempted:   true,
			ResultCount: len(results),
			TopScore:    topScore(results),
			TimeMs:      time.Since(layerStart).Milliseconds(),
			Skipped:     errString(err),
		}
		perLayer = append(perLayer, record)
		attempted = append(attempted, layer)

		if len(results) > 0 {
			candidateResults = results
			candidateLayer = layer
			if topScore(results) >= req.Stop.MinSufficiency {
				break
			}
		}

		if req.Intent == types.IntentTimeBoxed && ctx.Err() != nil {
			break
		}
	}

	return types.ExecutionResult{
		Results:          candidateResults,
		LayersAttempted:  attempted,
		PrimaryLayer:     candidateLayer,
		Tier:             req.Tier,
		Mode:             types.ModeSequential,
		FallbackOccurred: len(attempted) > 1,
		PerLayer:         perLayer,
		Explanation:      explainSequential(candidateLayer, len(attempted) > 1, attempted),
	}
}

func (e *Executor) runParallel(ctx context.Context, req Request, chain []types.Layer, beamWidth, limit int) types.ExecutionResult {
	layers := chain
	if beamWidth > 0 && len(layers) > beamWidth {
		layers = layers[:beamWidth]
	}

	type outcome struct {
		layer   types.Layer
		results []types.RetrievalResult
		err     error
		elapsed int64
	}
	outcomes := make([]outcome, len(layers))
	var wg sync.WaitGroup
	for i, layer := range layers {
		wg.Add(1)
		go func(i int, layer types.Layer) {
			defer wg.Done()
			s := time.Now()
			results, err := e.runLayer(ctx, layer, req.Query, req.Window, limit)
			outcomes[i] = outcome{layer: layer, results: results, err: err, elapsed: time.Since(s).Milliseconds()}
		}(i, layer)
	}
	wg.Wait()

	var perLayer []types.LayerRecord
	var attempted []types.Layer
	perLayerResults := map[types.Layer][]types.RetrievalResult{}
	for _, o := range outcomes {
		perLayer = append(perLayer, types.LayerRecord{
			Layer: o.layer, Attempted: true, ResultCount: len(o.results),
			TopScore: topScore(o.results), TimeMs: o.elapsed, Skipped: errString(o.err),
		})
		attempted = append(attempted, o.layer)
		if len(o.results) > 0 {
			perLayerResults[o.layer] = o.results
		}
	}

	var primary types.Layer
	var merged []types.RetrievalResult
	explanation := ""
	if req.Stop.MergeResults {
		merged = dedupeMaxScore(perLayerResults, limit)
		primary = lowestCognitiveLayer(layers, perLayerResults)
		explanation = explainParallel(primary, true)
	} else {
		primary, merged = bestLayerResults(layers, perLayerResults)
		explanation = explainParallel(primary, false)
	}

	return types.ExecutionResult{
		Results:          merged,
		LayersAttempted:  attempted,
		PrimaryLayer:     primary,
		Tier:             req.Tier,
		Mode:             types.ModeParallel,
		FallbackOccurred: len(attempted) > 1,
		PerLayer:         perLayer,
		Explanation:      explanation,
	}
}

func (e *Executor) runLayer(ctx context.Context, layer types.Layer, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
	switch layer {
	case types.LayerTopics:
		return callBudgeted(e.topics, ctx, query, window, limit)
	case types.LayerVector:
		return callBudgeted(e.vector, ctx, query, window, limit)
	case types.LayerBM25:
		return callBudgeted(e.bm25, ctx, query, window, limit)
	case types.LayerAgentic:
		return callBudgeted(e.agentic, ctx, query, window, limit)
	case types.LayerHybrid:
		bm25Results, err1 := callBudgeted(e.bm25, ctx, query, window, limit)
		vectorResults, err2 := callBudgeted(e.vector, ctx, query, window, limit)
		if err1 != nil && err2 != nil {
			return nil, err1
		}
		return rrfBlend(map[types.Layer][]types.RetrievalResult{
			types.LayerBM25:   bm25Results,
			types.LayerVector: vectorResults,
		}, e.weights, limit), nil
	default:
		return nil, nil
	}
}

// callBudgeted invokes fn unless the call budget carried on ctx is
// already spent, in which case it returns errRPCBudgetExhausted without
// touching fn. A nil fn (layer not configured) is not charged against
// the budget.
func callBudgeted(fn LayerFunc, ctx context.Context, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
	if fn == nil {
		return nil, nil
	}
	if !consumeRPCCall(ctx) {
		return nil, errRPCBudgetExhausted
	}
	return fn(ctx, query, window, limit)
}

func topScore(results []types.RetrievalResult) float64 {
	top := 0.0
	for _, r := range results {
		if r.Score > top {
			top = r.Score
		}
	}
	return top
}

func lowestCognitiveLayer(layers []types.Layer, perLayerResults map[types.Layer][]types.RetrievalResult) types.Layer {
	for _, l := range layers {
		if len(perLayerResults[l]) > 0 {
			return l
		}
	}
	return types.LayerAgentic
}

func bestLayerResults(layers []types.Layer, perLayerResults map[types.Layer][]types.RetrievalResult) (types.Layer, []types.RetrievalResult) {
	var bestLayer types.Layer
	var bestResults []types.RetrievalResult
	bestScore := -1.0
	for _, l := range layers {
		results := perLayerResults[l]
		if len(results) == 0 {
			continue
		}
		if score := topScore(results); score > bestScore {
			bestScore = score
			bestLayer = l
			bestResults = results
		}
	}
	return bestLayer, bestResults
}

func dedupeMaxScore(perLayerResults map[types.Layer][]types.RetrievalResult, limit int) []types.RetrievalResult {
	best := map[string]types.RetrievalResult{}
	for _, results := range perLayerResults {
		for _, r := range results {
			if existing, ok := best[r.DocID]; !ok || r.Score > existing.Score {
				best[r.DocID] = r
			}
		}
	}
	out := make([]types.RetrievalResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sortByScoreDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortByScoreDesc(results []types.RetrievalResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func explainSequential(primary types.Layer, fallbackOccurred bool, attempted []types.Layer) string {
	if primary == "" {
		return "sequential: no layer returned results, exhausted " + joinLayers(attempted)
	}
	if !fallbackOccurred {
		return "sequential: " + string(primary) + " met sufficiency on first try"
	}
	return "sequential: fell back through " + joinLayers(attempted) + ", settled on " + string(primary)
}

func explainParallel(primary types.Layer, merged bool) string {
	if primary == "" {
		return "parallel: no layer returned results"
	}
	if merged {
		return "parallel: merged results across layers, primary " + string(primary)
	}
	return "parallel: best single-layer result from " + string(primary)
}

func joinLayers(layers []types.Layer) string {
	strs := make([]string, len(layers))
	for i, l := range layers {
		strs[i] = string(l)
	}
	return strings.Join(strs, " -> ")
}
