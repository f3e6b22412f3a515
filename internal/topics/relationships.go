package topics

import (
	"encoding/json"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/types"
)

// RecordCoOccurrence builds or strengthens an undirected co-occurrence
// edge for (topicA, topicB) observed together in doc, adding
// strengthDelta to the running strength (clamped to [0,1]) and appending
// doc to the evidence list.
func (s *Store) RecordCoOccurrence(topicA, topicB, doc string, strengthDelta float64) error {
	return s.upsertUndirected(types.RelCoOccurrence, topicA, topicB, func(rel *types.TopicRelationship, exists bool) {
		rel.Strength = clamp01(rel.Strength + strengthDelta)
		rel.EvidenceCount++
		rel.EvidenceDocs = appendEvidence(rel.EvidenceDocs, doc)
	})
}

// RecordSemantic builds or strengthens an undirected semantic edge,
// taking the max of the existing strength and the new similarity.
func (s *Store) RecordSemantic(topicA, topicB string, similarity float64) error {
	return s.upsertUndirected(types.RelSemantic, topicA, topicB, func(rel *types.TopicRelationship, exists bool) {
		if !exists || similarity > rel.Strength {
			rel.Strength = clamp01(similarity)
		}
		rel.EvidenceCount++
	})
}

// RecordHierarchical creates a directed parent->child edge at full
// strength. Idempotent: calling it again just refreshes the timestamp.
func (s *Store) RecordHierarchical(parentID, childID string) error {
	if parentID == childID {
		return merrors.New(merrors.InvalidArgument, "topics.RecordHierarchical", "source and target must differ")
	}
	key := relationshipKey(string(types.RelHierarchical), parentID, childID)
	rel, exists, err := s.getRelationship(key)
	if err != nil {
		return err
	}
	now := types.NowMs()
	if !exists {
		rel = types.TopicRelationship{
			SourceID: parentID, TargetID: childID, Kind: types.RelHierarchical,
			Strength: 1.0, EvidenceCount: 1, CreatedAtMs: now,
		}
	}
	rel.UpdatedAtMs = now
	return s.putRelationship(key, rel)
}

func (s *Store) upsertUndirected(kind types.RelationshipKind, topicA, topicB string, mutate func(rel *types.TopicRelationship, exists bool)) error {
	if topicA == topicB {
		return merrors.New(merrors.InvalidArgument, "topics.upsertUndirected", "source and target must differ")
	}
	source, target := canonicalPair(topicA, topicB)
	key := relationshipKey(string(kind), source, target)

	rel, exists, err := s.getRelationship(key)
	if err != nil {
		return err
	}
	now := types.NowMs()
	if !exists {
		rel = types.TopicRelationship{SourceID: source, TargetID: target, Kind: kind, CreatedAtMs: now}
	}
	mutate(&rel, exists)
	rel.UpdatedAtMs = now
	return s.putRelationship(key, rel)
}

func (s *Store) getRelationship(key []byte) (types.TopicRelationship, bool, error) {
	raw, found, err := s.engine.Get(storage.CFTopicRelationships, key)
	if err != nil {
		return types.TopicRelationship{}, false, merrors.Wrap(merrors.Storage, "topics.getRelationship", err)
	}
	if !found {
		return types.TopicRelationship{}, false, nil
	}
	var rel types.TopicRelationship
	if err := json.Unmarshal(raw, &rel); err != nil {
		return types.TopicRelationship{}, false, merrors.Wrap(merrors.Internal, "topics.getRelationship", err)
	}
	return rel, true, nil
}

func (s *Store) putRelationship(key []byte, rel types.TopicRelationship) error {
	raw, err := json.Marshal(rel)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "topics.putRelationship", err)
	}
	if err := s.engine.Put(storage.CFTopicRelationships, key, raw); err != nil {
		return merrors.Wrap(merrors.Storage, "topics.putRelationship", err)
	}
	return nil
}

func appendEvidence(docs []string, doc string) []string {
	for _, d := range docs {
		if d == doc {
			return docs
		}
	}
	return append(docs, doc)
}

// GetRelatedTopics returns the top-N relationships touching topicID,
// optionally restricted to kindFilter, sorted by strength descending.
// The graph is small enough (one topic_relationships column family) for
// a full scan to be the simplest correct implementation.
func (s *Store) GetRelatedTopics(topicID string, kindFilter *types.RelationshipKind, topN int) ([]types.TopicRelationship, error) {
	var matches []types.TopicRelationship
	err := s.engine.ScanPrefix(storage.CFTopicRelationships, nil, func(_, value []byte) (bool, error) {
		var rel types.TopicRelationship
		if err := json.Unmarshal(value, &rel); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.GetRelatedTopics", err)
		}
		if rel.SourceID != topicID && rel.TargetID != topicID {
			return true, nil
		}
		if kindFilter != nil && rel.Kind != *kindFilter {
			return true, nil
		}
		matches = append(matches, rel)
		return true, nil
	})
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "topics.GetRelatedTopics", err)
	}

	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Strength > matches[j-1].Strength; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}
