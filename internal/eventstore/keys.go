package eventstore

import (
	"encoding/binary"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// eventKey builds the event store's primary key: an 8-byte big-endian
// millisecond timestamp concatenated with the 10-byte entropy remainder
// of the event's ULID, so a forward scan over the events column family
// yields chronological order.
func eventKey(eventID string) ([]byte, error) {
	id, err := ulid.ParseStrict(eventID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: invalid event id %q: %w", eventID, err)
	}
	key := make([]byte, 18)
	binary.BigEndian.PutUint64(key[:8], id.Time())
	copy(key[8:], id[6:]) // the 10 bytes of randomness
	return key, nil
}

// timestampPrefix returns the 8-byte big-endian encoding of ms, used as
// an inclusive range bound against event keys.
func timestampPrefix(ms int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ms))
	return buf
}

// outboxKey encodes a monotonic outbox sequence as an 8-byte big-endian
// key.
func outboxKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func decodeOutboxKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
