package main

import (
	"context"

	"github.com/agentmemory/memd/internal/indexlexical"
	"github.com/agentmemory/memd/internal/indexvector"
	"github.com/agentmemory/memd/internal/topics"
	"github.com/agentmemory/memd/internal/types"
)

// probeProbeText is an arbitrary, always-present token used only to check
// that a layer's backing store answers a query at all; its results are
// discarded.
const probeProbeText = "memd"

func bm25ProbeFunc(ix *indexlexical.Indexer) func(ctx context.Context) types.LayerHealth {
	return func(_ context.Context) types.LayerHealth {
		if ix == nil {
			return types.LayerHealth{Status: types.StatusDisabled}
		}
		hits, err := ix.Search(probeProbeText, 1, nil)
		if err != nil {
			return types.LayerHealth{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.LayerHealth{Status: types.StatusAvailable, DocCount: len(hits)}
	}
}

func vectorProbeFunc(ix *indexvector.Indexer, embedder indexvector.Embedder) func(ctx context.Context) types.LayerHealth {
	return func(_ context.Context) types.LayerHealth {
		if ix == nil || embedder == nil {
			return types.LayerHealth{Status: types.StatusDisabled}
		}
		vec, err := embedder.Embed(probeProbeText)
		if err != nil {
			return types.LayerHealth{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		hits, err := ix.Search(vec, 1)
		if err != nil {
			return types.LayerHealth{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.LayerHealth{Status: types.StatusAvailable, DocCount: len(hits)}
	}
}

func topicsProbeFunc(store *topics.Store) func(ctx context.Context) types.LayerHealth {
	return func(_ context.Context) types.LayerHealth {
		if store == nil {
			return types.LayerHealth{Status: types.StatusDisabled}
		}
		found, err := store.SearchTopics("", 1)
		if err != nil {
			return types.LayerHealth{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.LayerHealth{Status: types.StatusAvailable, DocCount: len(found)}
	}
}
