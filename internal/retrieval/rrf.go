package retrieval

import (
	"sort"

	"github.com/agentmemory/memd/internal/types"
)

// defaultRRFK is the standard Reciprocal Rank Fusion constant; it damps
// the contribution of low ranks without a per-layer tuning pass.
const defaultRRFK = 60.0

// rrfBlend combines per-layer result lists into one, scoring each doc by
// the sum of weight/(k+rank) across every layer it appears in.
func rrfBlend(perLayer map[types.Layer][]types.RetrievalResult, weights map[types.Layer]float64, limit int) []types.RetrievalResult {
	combined := map[string]*types.RetrievalResult{}
	rrfScore := map[string]float64{}

	for layer, results := range perLayer {
		weight, ok := weights[layer]
		if !ok {
			weight = 1
		}
		for rank, r := range results {
			contribution := weight / (defaultRRFK + float64(rank+1))
			rrfScore[r.DocID] += contribution
			if existing, ok := combined[r.DocID]; !ok || r.Score > existing.Score {
				merged := r
				merged.Layer = types.LayerHybrid
				combined[r.DocID] = &merged
			}
		}
	}

	out := make([]types.RetrievalResult, 0, len(combined))
	for docID, result := range combined {
		res := *result
		res.Score = rrfScore[docID]
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
