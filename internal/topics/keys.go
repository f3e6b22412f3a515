package topics

import "fmt"

func linkKey(topicID, nodeID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", topicID, nodeID))
}

func linkByNodeKey(nodeID, topicID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", nodeID, topicID))
}

func relationshipKey(kind, sourceID, targetID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", kind, sourceID, targetID))
}

// canonicalPair returns a and b in a stable order so undirected edges
// (co-occurrence, semantic) have exactly one storage key per pair.
func canonicalPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}
