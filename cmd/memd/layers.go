package main

import (
	"context"
	"sort"

	"github.com/agentmemory/memd/internal/indexlexical"
	"github.com/agentmemory/memd/internal/indexvector"
	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/topics"
	"github.com/agentmemory/memd/internal/types"
)

// bm25LayerFunc adapts an indexlexical.Indexer into a retrieval.LayerFunc.
// Window is ignored: the lexical index has no time-range filter, only
// DocType/Level/Agent ones, so it always searches the full corpus.
func bm25LayerFunc(ix *indexlexical.Indexer) func(ctx context.Context, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
	return func(_ context.Context, query string, _ *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
		if ix == nil {
			return nil, merrors.New(merrors.Unavailable, "layer.bm25", "lexical indexer not configured")
		}
		hits, err := ix.Search(query, limit, nil)
		if err != nil {
			return nil, err
		}
		results := make([]types.RetrievalResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, types.RetrievalResult{
				DocID:          h.DocID,
				DocType:        types.DocType(h.DocType),
				Score:          h.Score,
				MatchedPreview: h.MatchedPreview,
				Layer:          types.LayerBM25,
				AgentID:        h.Agent,
			})
		}
		return results, nil
	}
}

// vectorLayerFunc adapts an indexvector.Indexer into a retrieval.LayerFunc,
// embedding the query text through embedder on every call. Window is
// ignored for the same reason as bm25LayerFunc.
func vectorLayerFunc(ix *indexvector.Indexer, embedder indexvector.Embedder) func(ctx context.Context, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
	return func(_ context.Context, query string, _ *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
		if ix == nil || embedder == nil {
			return nil, merrors.New(merrors.Unavailable, "layer.vector", "vector indexer not configured")
		}
		vec, err := embedder.Embed(query)
		if err != nil {
			return nil, merrors.Wrap(merrors.Internal, "layer.vector", err)
		}
		hits, err := ix.Search(vec, limit)
		if err != nil {
			return nil, err
		}
		results := make([]types.RetrievalResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, types.RetrievalResult{
				DocID:          h.DocID,
				DocType:        h.DocType,
				Score:          float64(h.Distance),
				MatchedPreview: h.TextPreview,
				Layer:          types.LayerVector,
			})
		}
		return results, nil
	}
}

// topicsLayerFunc finds topics matching query, then flattens each into
// the TOC nodes it's linked to, scored by importance times link
// relevance. Window is ignored: topic importance already folds in
// recency, per spec §4.6.
func topicsLayerFunc(store *topics.Store) func(ctx context.Context, query string, window *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
	return func(_ context.Context, query string, _ *types.TimeWindow, limit int) ([]types.RetrievalResult, error) {
		if store == nil {
			return nil, merrors.New(merrors.Unavailable, "layer.topics", "topic store not configured")
		}
		found, err := store.SearchTopics(query, limit)
		if err != nil {
			return nil, err
		}
		var results []types.RetrievalResult
		for _, topic := range found {
			links, err := store.GetNodesForTopic(topic.ID)
			if err != nil {
				return nil, err
			}
			for _, link := range links {
				results = append(results, types.RetrievalResult{
					DocID:          link.NodeID,
					DocType:        types.DocTocNode,
					Score:          topic.ImportanceScore * link.Relevance,
					MatchedPreview: topic.Label,
					Layer:          types.LayerTopics,
				})
			}
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if limit > 0 && len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}
}
