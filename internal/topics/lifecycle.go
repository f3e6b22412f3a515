package topics

import (
	"encoding/json"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/types"
)

// PruneStaleTopics flips every Active topic last mentioned more than
// days ago to Pruned, returning the count affected.
func (s *Store) PruneStaleTopics(days int) (int, error) {
	cutoff := types.NowMs() - int64(days)*86_400_000
	count := 0

	var stale []types.Topic
	err := s.engine.ScanPrefix(storage.CFTopics, nil, func(_, value []byte) (bool, error) {
		var topic types.Topic
		if err := json.Unmarshal(value, &topic); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.PruneStaleTopics", err)
		}
		if topic.Status == types.TopicActive && topic.LastMentionedMs < cutoff {
			stale = append(stale, topic)
		}
		return true, nil
	})
	if err != nil {
		return 0, merrors.Wrap(merrors.Storage, "topics.PruneStaleTopics", err)
	}

	for _, topic := range stale {
		topic.Status = types.TopicPruned
		if err := s.putTopic(topic); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// MergeSimilarTopics finds Active topic pairs whose embedding cosine
// similarity is at least threshold, keeps the one with higher importance,
// unions node counts and keywords into it, and marks the loser Pruned.
func (s *Store) MergeSimilarTopics(threshold float64) (int, error) {
	var active []types.Topic
	err := s.engine.ScanPrefix(storage.CFTopics, nil, func(_, value []byte) (bool, error) {
		var topic types.Topic
		if err := json.Unmarshal(value, &topic); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.MergeSimilarTopics", err)
		}
		if topic.Status == types.TopicActive {
			active = append(active, topic)
		}
		return true, nil
	})
	if err != nil {
		return 0, merrors.Wrap(merrors.Storage, "topics.MergeSimilarTopics", err)
	}

	merged := map[string]bool{}
	count := 0
	for i := 0; i < len(active); i++ {
		if merged[active[i].ID] {
			continue
		}
		for j := i + 1; j < len(active); j++ {
			if merged[active[j].ID] {
				continue
			}
			if cosineSimilarity(active[i].Embedding, active[j].Embedding) < threshold {
				continue
			}
			winner, loser := &active[i], &active[j]
			if loser.ImportanceScore > winner.ImportanceScore {
				winner, loser = loser, winner
			}
			winner.NodeCount += loser.NodeCount
			winner.Keywords = unionKeywords(winner.Keywords, loser.Keywords)
			loser.Status = types.TopicPruned

			if err := s.putTopic(*winner); err != nil {
				return count, err
			}
			if err := s.putTopic(*loser); err != nil {
				return count, err
			}
			merged[loser.ID] = true
			count++
			if merged[active[i].ID] {
				// active[i] just lost a merge: it's Pruned now, so it
				// can't anchor further comparisons in this inner loop.
				break
			}
		}
	}
	return count, nil
}

func unionKeywords(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, kw := range append(append([]string{}, a...), b...) {
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

// ResurrectTopic explicitly flips a topic back to Active.
func (s *Store) ResurrectTopic(id string) error {
	return s.setStatus(id, types.TopicActive)
}

// ArchiveTopic explicitly flips a topic to Pruned, independent of the
// algorithmic lifecycle passes.
func (s *Store) ArchiveTopic(id string) error {
	return s.setStatus(id, types.TopicPruned)
}

func (s *Store) setStatus(id string, status types.TopicStatus) error {
	topic, found, err := s.GetTopic(id)
	if err != nil {
		return err
	}
	if !found {
		return merrors.New(merrors.NotFound, "topics.setStatus", "topic not found: "+id)
	}
	topic.Status = status
	return s.putTopic(topic)
}
