// Package topics implements the topic graph: a lightweight property
// graph of topics, topic-to-node links, and topic-to-topic relationships
// layered on the same key-value engine as everything else.
package topics

import (
	"encoding/json"
	"strings"

	"github.com/agentmemory/memd/internal/idgen"
	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/types"
)

// Store is the topic graph store.
type Store struct {
	engine storage.Engine
	params ImportanceParams
}

// Open returns a ready Store using the given importance parameters.
func Open(engine storage.Engine, params ImportanceParams) *Store {
	return &Store{engine: engine, params: params}
}

// CreateTopic allocates a new Active topic with an importance score
// seeded from node_count=0 and the current time.
func (s *Store) CreateTopic(label string, keywords []string, embedding []float32) (types.Topic, error) {
	now := types.NowMs()
	topic := types.Topic{
		ID:              idgen.New(),
		Label:           label,
		Embedding:       embedding,
		Keywords:        keywords,
		CreatedAtMs:     now,
		LastMentionedMs: now,
		Status:          types.TopicActive,
	}
	topic.ImportanceScore = computeImportance(s.params, topic.NodeCount, topic.LastMentionedMs, now)
	if err := s.putTopic(topic); err != nil {
		return types.Topic{}, err
	}
	return topic, nil
}

func (s *Store) putTopic(topic types.Topic) error {
	raw, err := json.Marshal(topic)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "topics.putTopic", err)
	}
	if err := s.engine.Put(storage.CFTopics, []byte(topic.ID), raw); err != nil {
		return merrors.Wrap(merrors.Storage, "topics.putTopic", err)
	}
	return nil
}

// GetTopic looks up a topic by id.
func (s *Store) GetTopic(id string) (types.Topic, bool, error) {
	raw, found, err := s.engine.Get(storage.CFTopics, []byte(id))
	if err != nil {
		return types.Topic{}, false, merrors.Wrap(merrors.Storage, "topics.GetTopic", err)
	}
	if !found {
		return types.Topic{}, false, nil
	}
	var topic types.Topic
	if err := json.Unmarshal(raw, &topic); err != nil {
		return types.Topic{}, false, merrors.Wrap(merrors.Internal, "topics.GetTopic", err)
	}
	return topic, true, nil
}

// OnTopicMentioned increments node_count, refreshes the mention
// timestamp, and recomputes importance.
func (s *Store) OnTopicMentioned(topicID string) error {
	topic, found, err := s.GetTopic(topicID)
	if err != nil {
		return err
	}
	if !found {
		return merrors.New(merrors.NotFound, "topics.OnTopicMentioned", "topic not found: "+topicID)
	}
	now := types.NowMs()
	topic.NodeCount++
	topic.LastMentionedMs = now
	topic.ImportanceScore = computeImportance(s.params, topic.NodeCount, topic.LastMentionedMs, now)
	return s.putTopic(topic)
}

// TouchTopic refreshes only the mention timestamp and importance, not
// node_count.
func (s *Store) TouchTopic(topicID string) error {
	topic, found, err := s.GetTopic(topicID)
	if err != nil {
		return err
	}
	if !found {
		return merrors.New(merrors.NotFound, "topics.TouchTopic", "topic not found: "+topicID)
	}
	now := types.NowMs()
	topic.LastMentionedMs = now
	topic.ImportanceScore = computeImportance(s.params, topic.NodeCount, topic.LastMentionedMs, now)
	return s.putTopic(topic)
}

// RefreshImportanceScores recomputes every topic's score and persists
// only those whose value materially changed.
func (s *Store) RefreshImportanceScores() (int, error) {
	const materialDelta = 1e-6
	now := types.NowMs()
	updated := 0

	var topics []types.Topic
	err := s.engine.ScanPrefix(storage.CFTopics, nil, func(_, value []byte) (bool, error) {
		var topic types.Topic
		if err := json.Unmarshal(value, &topic); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.RefreshImportanceScores", err)
		}
		topics = append(topics, topic)
		return true, nil
	})
	if err != nil {
		return 0, merrors.Wrap(merrors.Storage, "topics.RefreshImportanceScores", err)
	}

	for _, topic := range topics {
		newScore := computeImportance(s.params, topic.NodeCount, topic.LastMentionedMs, now)
		if diff := newScore - topic.ImportanceScore; diff > materialDelta || diff < -materialDelta {
			topic.ImportanceScore = newScore
			if err := s.putTopic(topic); err != nil {
				return updated, err
			}
			updated++
		}
	}
	return updated, nil
}

// PutTopicLink writes the topic<->node link under both directions so it
// can be scanned from either side.
func (s *Store) PutTopicLink(link types.TopicLink) error {
	raw, err := json.Marshal(link)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "topics.PutTopicLink", err)
	}
	err = s.engine.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFTopicLinks, linkKey(link.TopicID, link.NodeID), raw); err != nil {
			return err
		}
		return b.Put(storage.CFTopicLinksByNode, linkByNodeKey(link.NodeID, link.TopicID), raw)
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "topics.PutTopicLink", err)
	}
	return nil
}

// GetTopicsForNode returns every topic linked to nodeID.
func (s *Store) GetTopicsForNode(nodeID string) ([]types.TopicLink, error) {
	var links []types.TopicLink
	prefix := []byte(nodeID + ":")
	err := s.engine.ScanPrefix(storage.CFTopicLinksByNode, prefix, func(_, value []byte) (bool, error) {
		var link types.TopicLink
		if err := json.Unmarshal(value, &link); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.GetTopicsForNode", err)
		}
		links = append(links, link)
		return true, nil
	})
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "topics.GetTopicsForNode", err)
	}
	return links, nil
}

// GetNodesForTopic returns every node linked to topicID.
func (s *Store) GetNodesForTopic(topicID string) ([]types.TopicLink, error) {
	var links []types.TopicLink
	prefix := []byte(topicID + ":")
	err := s.engine.ScanPrefix(storage.CFTopicLinks, prefix, func(_, value []byte) (bool, error) {
		var link types.TopicLink
		if err := json.Unmarshal(value, &link); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.GetNodesForTopic", err)
		}
		links = append(links, link)
		return true, nil
	})
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "topics.GetNodesForTopic", err)
	}
	return links, nil
}

// SearchTopics does a case-insensitive label/keyword substring match over
// Active topics, sorted by importance descending.
func (s *Store) SearchTopics(query string, limit int) ([]types.Topic, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	var matches []types.Topic
	err := s.engine.ScanPrefix(storage.CFTopics, nil, func(_, value []byte) (bool, error) {
		var topic types.Topic
		if err := json.Unmarshal(value, &topic); err != nil {
			return false, merrors.Wrap(merrors.Internal, "topics.SearchTopics", err)
		}
		if topic.Status != types.TopicActive {
			return true, nil
		}
		if needle == "" || topicMatches(topic, needle) {
			matches = append(matches, topic)
		}
		return true, nil
	})
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "topics.SearchTopics", err)
	}

	sortByImportanceDesc(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func topicMatches(topic types.Topic, needle string) bool {
	if strings.Contains(strings.ToLower(topic.Label), needle) {
		return true
	}
	for _, kw := range topic.Keywords {
		if strings.Contains(strings.ToLower(kw), needle) {
			return true
		}
	}
	return false
}

func sortByImportanceDesc(topics []types.Topic) {
	for i := 1; i < len(topics); i++ {
		for j := i; j > 0 && topics[j].ImportanceScore > topics[j-1].ImportanceScore; j-- {
			topics[j], topics[j-1] = topics[j-1], topics[j]
		}
	}
}
