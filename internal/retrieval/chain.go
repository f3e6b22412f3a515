package retrieval

import "github.com/agentmemory/memd/internal/types"

// preferredOrders is the spec's fallback-chain table before tier
// filtering. Agentic is the implicit terminal layer for every intent.
var preferredOrders = map[types.Intent][]types.Layer{
	types.IntentExplore: {types.LayerTopics, types.LayerHybrid, types.LayerVector, types.LayerBM25, types.LayerAgentic},
	types.IntentAnswer:  {types.LayerHybrid, types.LayerBM25, types.LayerVector, types.LayerAgentic},
	types.IntentLocate:  {types.LayerBM25, types.LayerHybrid, types.LayerVector, types.LayerAgentic},
}

// layerSupported reports whether tier has the indexers a layer needs.
// Agentic needs nothing and is always supported.
func layerSupported(tier types.Tier, layer types.Layer) bool {
	if layer == types.LayerAgentic {
		return true
	}
	switch tier {
	case types.TierFull:
		return true
	case types.TierHybrid:
		return layer == types.LayerHybrid || layer == types.LayerVector || layer == types.LayerBM25
	case types.TierSemantic:
		return layer == types.LayerVector
	case types.TierKeyword:
		return layer == types.LayerBM25
	default:
		return false
	}
}

// bestLayerForTier picks the single richest layer the tier supports, for
// the TimeBoxed intent's "best layer of current tier" chain.
func bestLayerForTier(tier types.Tier) types.Layer {
	switch tier {
	case types.TierFull, types.TierHybrid:
		return types.LayerHybrid
	case types.TierSemantic:
		return types.LayerVector
	case types.TierKeyword:
		return types.LayerBM25
	default:
		return types.LayerAgentic
	}
}

// chainFor builds the fallback chain for intent, filtered to layers tier
// supports, always terminating in Agentic.
func chainFor(intent types.Intent, tier types.Tier) []types.Layer {
	if intent == types.IntentTimeBoxed {
		best := bestLayerForTier(tier)
		if best == types.LayerAgentic {
			return []types.Layer{types.LayerAgentic}
		}
		return []types.Layer{best, types.LayerAgentic}
	}

	preferred := preferredOrders[intent]
	if preferred == nil {
		preferred = preferredOrders[types.IntentAnswer]
	}
	var chain []types.Layer
	for _, layer := range preferred {
		if layerSupported(tier, layer) {
			chain = append(chain, layer)
		}
	}
	if len(chain) == 0 || chain[len(chain)-1] != types.LayerAgentic {
		chain = append(chain, types.LayerAgentic)
	}
	return chain
}

func clampBeamWidth(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}
