// Package eventstore persists conversational events and the outbox
// records that drive the indexing pipeline, on top of a storage.Engine.
package eventstore

import (
	"encoding/json"
	"sync/atomic"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/types"
)

// Store is the durable event store with transactional outbox described
// in this project's event-store component.
type Store struct {
	engine  storage.Engine
	nextSeq uint64 // atomic; next outbox sequence to allocate
}

// Open recovers the outbox sequence counter from the highest existing
// key (fetch-and-add continues from there) and returns a ready Store.
func Open(engine storage.Engine) (*Store, error) {
	s := &Store{engine: engine}

	key, _, found, err := engine.Last(storage.CFOutbox)
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "eventstore.Open", err)
	}
	if found {
		s.nextSeq = decodeOutboxKey(key) + 1
	}
	return s, nil
}

// PutEvent writes event and its outbox record in a single atomic batch.
// If event.ID already exists, the call is a no-op and created is false
// (strict idempotency).
func (s *Store) PutEvent(event types.Event) (created bool, err error) {
	if event.ID == "" {
		return false, merrors.New(merrors.InvalidArgument, "eventstore.PutEvent", "event id is required")
	}
	if event.SessionID == "" {
		return false, merrors.New(merrors.InvalidArgument, "eventstore.PutEvent", "session id is required")
	}

	key, err := eventKey(event.ID)
	if err != nil {
		return false, merrors.Wrap(merrors.InvalidArgument, "eventstore.PutEvent", err)
	}

	if _, found, err := s.engine.Get(storage.CFEvents, key); err != nil {
		return false, merrors.Wrap(merrors.Storage, "eventstore.PutEvent", err)
	} else if found {
		return false, nil
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return false, merrors.Wrap(merrors.Internal, "eventstore.PutEvent", err)
	}

	seq := atomic.AddUint64(&s.nextSeq, 1) - 1
	entry := types.OutboxEntry{
		Sequence:    seq,
		Action:      types.ActionIndexEvent,
		EventID:     event.ID,
		TimestampMs: event.TimestampMs,
	}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return false, merrors.Wrap(merrors.Internal, "eventstore.PutEvent", err)
	}

	err = s.engine.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFEvents, key, eventBytes); err != nil {
			return err
		}
		return b.Put(storage.CFOutbox, outboxKey(seq), entryBytes)
	})
	if err != nil {
		return false, merrors.Wrap(merrors.Storage, "eventstore.PutEvent", err)
	}
	return true, nil
}

// EnqueueUpdateToc appends an ActionUpdateToc outbox entry for docID (a
// TocNode or Grip id), for writers outside this package (the TOC/grip
// store) that need to notify the indexing pipeline of new content.
func (s *Store) EnqueueUpdateToc(docID string) (uint64, error) {
	if docID == "" {
		return 0, merrors.New(merrors.InvalidArgument, "eventstore.EnqueueUpdateToc", "doc id is required")
	}
	seq := atomic.AddUint64(&s.nextSeq, 1) - 1
	entry := types.OutboxEntry{
		Sequence:    seq,
		Action:      types.ActionUpdateToc,
		DocID:       docID,
		TimestampMs: types.NowMs(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return 0, merrors.Wrap(merrors.Internal, "eventstore.EnqueueUpdateToc", err)
	}
	if err := s.engine.Put(storage.CFOutbox, outboxKey(seq), raw); err != nil {
		return 0, merrors.Wrap(merrors.Storage, "eventstore.EnqueueUpdateToc", err)
	}
	return seq, nil
}

// GetEvent looks up a single event by id.
func (s *Store) GetEvent(eventID string) (types.Event, bool, error) {
	key, err := eventKey(eventID)
	if err != nil {
		return types.Event{}, false, merrors.Wrap(merrors.InvalidArgument, "eventstore.GetEvent", err)
	}
	raw, found, err := s.engine.Get(storage.CFEvents, key)
	if err != nil {
		return types.Event{}, false, merrors.Wrap(merrors.Storage, "eventstore.GetEvent", err)
	}
	if !found {
		return types.Event{}, false, nil
	}
	var event types.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return types.Event{}, false, merrors.Wrap(merrors.Internal, "eventstore.GetEvent", err)
	}
	return event, true, nil
}

// GetEventsInRange returns every event with startMs <= TimestampMs <=
// endMs, in chronological order.
func (s *Store) GetEventsInRange(startMs, endMs int64) ([]types.Event, error) {
	if endMs < startMs {
		return nil, merrors.New(merrors.InvalidArgument, "eventstore.GetEventsInRange", "endMs before startMs")
	}
	var events []types.Event
	err := s.engine.ScanRange(storage.CFEvents, timestampPrefix(startMs), timestampPrefix(endMs+1),
		func(_, value []byte) (bool, error) {
			var event types.Event
			if err := json.Unmarshal(value, &event); err != nil {
				return false, merrors.Wrap(merrors.Internal, "eventstore.GetEventsInRange", err)
			}
			events = append(events, event)
			return true, nil
		})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetOutboxEntries returns up to limit outbox entries at or after
// startSequence, in sequence order.
func (s *Store) GetOutboxEntries(startSequence uint64, limit int) ([]types.OutboxEntry, error) {
	var entries []types.OutboxEntry
	err := s.engine.ScanRange(storage.CFOutbox, outboxKey(startSequence), nil,
		func(_, value []byte) (bool, error) {
			if limit > 0 && len(entries) >= limit {
				return false, nil
			}
			var entry types.OutboxEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return false, merrors.Wrap(merrors.Internal, "eventstore.GetOutboxEntries", err)
			}
			entries = append(entries, entry)
			return true, nil
		})
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "eventstore.GetOutboxEntries", err)
	}
	return entries, nil
}

// DeleteOutboxEntries removes every outbox record with sequence <=
// upToSequence, freeing space once every registered indexer has passed
// it.
func (s *Store) DeleteOutboxEntries(upToSequence uint64) error {
	var toDelete [][]byte
	err := s.engine.ScanRange(storage.CFOutbox, nil, outboxKey(upToSequence+1),
		func(key, _ []byte) (bool, error) {
			toDelete = append(toDelete, append([]byte(nil), key...))
			return true, nil
		})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "eventstore.DeleteOutboxEntries", err)
	}
	if len(toDelete) == 0 {
		return nil
	}
	return s.engine.Batch(func(b storage.Batch) error {
		for _, key := range toDelete {
			if err := b.Delete(storage.CFOutbox, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutCheckpoint persists an indexer's checkpoint.
func (s *Store) PutCheckpoint(cp types.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "eventstore.PutCheckpoint", err)
	}
	if err := s.engine.Put(storage.CFCheckpoints, []byte(cp.Name), raw); err != nil {
		return merrors.Wrap(merrors.Storage, "eventstore.PutCheckpoint", err)
	}
	return nil
}

// GetCheckpoint returns an indexer's checkpoint, or a zero-value
// checkpoint with found=false if it has never registered one.
func (s *Store) GetCheckpoint(name string) (types.Checkpoint, bool, error) {
	raw, found, err := s.engine.Get(storage.CFCheckpoints, []byte(name))
	if err != nil {
		return types.Checkpoint{}, false, merrors.Wrap(merrors.Storage, "eventstore.GetCheckpoint", err)
	}
	if !found {
		return types.Checkpoint{Name: name}, false, nil
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return types.Checkpoint{}, false, merrors.Wrap(merrors.Internal, "eventstore.GetCheckpoint", err)
	}
	return cp, true, nil
}
