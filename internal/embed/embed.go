// Package embed provides a deterministic, non-semantic stand-in for the
// embedding model the vector indexer treats as an external collaborator
// (spec §1): a pure function from text to a fixed-dimension vector, with
// no model weights and no network call, so the daemon can exercise its
// own vector indexing and retrieval paths without one.
package embed

import (
	"hash/fnv"
	"math"
	"strings"
)

// Hashing is a feature-hashed bag-of-words embedder: each token is hashed
// into one of Dim buckets and accumulated, then the vector is L2
// normalized. Same text always yields the same vector; related text
// sharing tokens lands closer in cosine distance than unrelated text,
// which is enough to exercise the ANN index end to end. It is not a
// semantic embedding and should be replaced by a real model in any
// deployment that needs meaningful nearest-neighbour results.
type Hashing struct {
	Dim int
}

// NewHashing builds a Hashing embedder producing dim-length vectors.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 128
	}
	return &Hashing{Dim: dim}
}

// Embed implements indexvector.Embedder.
func (h *Hashing) Embed(text string) ([]float32, error) {
	vec := make([]float32, h.Dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		bucket := int(hasher.Sum32()) % h.Dim
		if bucket < 0 {
			bucket += h.Dim
		}
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec, nil
}
