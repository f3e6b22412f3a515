package retrieval

import "github.com/agentmemory/memd/internal/types"

// BuildExplainability wraps an ExecutionResult with the query-level
// context spec §4.9 requires callers to receive: intent, winner, bounds
// hit, and the grip ids grounding the answer.
func BuildExplainability(intent types.Intent, result types.ExecutionResult) types.Explainability {
	return types.Explainability{
		Intent:               intent,
		Tier:                 result.Tier,
		Mode:                 result.Mode,
		CandidatesConsidered: len(result.Results),
		Winner:               result.PrimaryLayer,
		WhyWinner:            result.Explanation,
		BoundsHit:            boundsHit(result),
		EvidenceGripIDs:      extractGripIDs(result.Results),
		Result:               result,
	}
}

func boundsHit(result types.ExecutionResult) []string {
	var hits []string
	for _, rec := range result.PerLayer {
		if rec.Skipped != "" {
			hits = append(hits, string(rec.Layer)+": "+rec.Skipped)
		}
	}
	return hits
}

func extractGripIDs(results []types.RetrievalResult) []string {
	var ids []string
	for _, r := range results {
		if r.DocType == types.DocGrip {
			ids = append(ids, r.DocID)
		}
	}
	return ids
}
