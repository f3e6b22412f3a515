package topics

import "math"

// ImportanceParams holds the tunables from the topics.* config keys.
type ImportanceParams struct {
	HalfLifeDays       float64
	RecencyBoostFactor float64
	MinScore           float64
}

// computeImportance implements the topic graph's importance formula:
// ln(1+node_count) * 2^(-days_since_mention/half_life_days) * recency_boost,
// clamped to [min_score, +inf).
func computeImportance(params ImportanceParams, nodeCount int, lastMentionedMs, nowMs int64) float64 {
	daysSince := float64(nowMs-lastMentionedMs) / 86_400_000.0
	if daysSince < 0 {
		daysSince = 0
	}

	decay := math.Pow(2, -daysSince/params.HalfLifeDays)
	score := math.Log(1+float64(nodeCount)) * decay * recencyBoost(params, daysSince)

	if score < params.MinScore {
		return params.MinScore
	}
	return score
}

// recencyBoost is recency_boost_factor for under a day, linearly
// interpolates down to 1.0 over 1..7 days, and is 1.0 beyond.
func recencyBoost(params ImportanceParams, daysSince float64) float64 {
	switch {
	case daysSince < 1:
		return params.RecencyBoostFactor
	case daysSince < 7:
		t := (daysSince - 1) / (7 - 1)
		return params.RecencyBoostFactor + t*(1.0-params.RecencyBoostFactor)
	default:
		return 1.0
	}
}

// cosineSimilarity is plain arithmetic with no pack library to reach for;
// used by merge_similar_topics to compare topic embeddings.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
