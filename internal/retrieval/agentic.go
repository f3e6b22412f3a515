package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/types"
)

// AgenticSearcher is the always-available fallback layer: a bounded beam
// search over the TOC tree that needs no index, only the TOC/grip store.
type AgenticSearcher struct {
	toc       *toc.Store
	beamWidth int
	maxDepth  int
}

// NewAgenticSearcher builds a searcher with the given beam width and
// maximum descent depth.
func NewAgenticSearcher(store *toc.Store, beamWidth, maxDepth int) *AgenticSearcher {
	if beamWidth < 1 {
		beamWidth = 3
	}
	if maxDepth < 1 {
		maxDepth = 4
	}
	return &AgenticSearcher{toc: store, beamWidth: beamWidth, maxDepth: maxDepth}
}

// Search starts at Year-level roots within window (or all roots when nil),
// scores children by title/keyword token overlap with query, keeps the top
// beamWidth at each level, descends up to maxDepth levels, and collects
// grips from the surviving leaves. Always terminates and always returns a
// (possibly empty) result set.
func (a *AgenticSearcher) Search(ctx context.Context, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
	tokens := tokenize(query)

	maxDepth := a.maxDepth
	if d, ok := maxDepthOverride(ctx); ok {
		maxDepth = d
	}

	frontier, err := a.toc.GetTocNodesByLevel(types.LevelYear, window)
	if err != nil {
		return nil, err
	}

	for depth := 0; depth < maxDepth && ctx.Err() == nil; depth++ {
		frontier = topByOverlap(frontier, tokens, a.beamWidth)

		var next []types.TocNode
		for _, node := range frontier {
			if !consumeRPCCall(ctx) {
				break // rpc call budget spent: stop descending, keep the current frontier
			}
			children, err := a.toc.GetChildNodes(node.ID)
			if err != nil {
				return nil, err
			}
			next = append(next, children...)
		}
		if len(next) == 0 {
			break // frontier nodes have no children: they're leaves
		}
		frontier = next
	}
	frontier = topByOverlap(frontier, tokens, a.beamWidth)

	var results []types.RetrievalResult
	for _, node := range frontier {
		if !consumeRPCCall(ctx) {
			break
		}
		grips, err := a.toc.GetGripsForNode(node.ID)
		if err != nil {
			return nil, err
		}
		score := overlapScore(node, tokens)
		for _, g := range grips {
			results = append(results, types.RetrievalResult{
				DocID:          g.ID,
				DocType:        types.DocGrip,
				Score:          score,
				MatchedPreview: preview(g.Text),
				Layer:          types.LayerAgentic,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func tokenize(s string) map[string]bool {
	set := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		set[f] = true
	}
	return set
}

func overlapScore(node types.TocNode, tokens map[string]bool) float64 {
	if len(tokens) == 0 {
		return 0
	}
	haystack := tokenize(node.Title + " " + strings.Join(node.Keywords, " "))
	matches := 0
	for t := range tokens {
		if haystack[t] {
			matches++
		}
	}
	return float64(matches) / float64(len(tokens))
}

func topByOverlap(nodes []types.TocNode, tokens map[string]bool, beamWidth int) []types.TocNode {
	type scored struct {
		node  types.TocNode
		score float64
	}
	scoredNodes := make([]scored, len(nodes))
	for i, n := range nodes {
		scoredNodes[i] = scored{node: n, score: overlapScore(n, tokens)}
	}
	sort.Slice(scoredNodes, func(i, j int) bool { return scoredNodes[i].score > scoredNodes[j].score })
	if beamWidth > 0 && len(scoredNodes) > beamWidth {
		scoredNodes = scoredNodes[:beamWidth]
	}
	out := make([]types.TocNode, len(scoredNodes))
	for i, s := range scoredNodes {
		out[i] = s.node
	}
	return out
}

func preview(text string) string {
	const maxLen = 160
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
