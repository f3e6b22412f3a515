// Package idgen generates the identifiers used across memd's data model:
// time-ordered ULIDs for events, where the event store's primary key
// depends on lexical time-ordering, and UUIDs everywhere an id just needs
// to be unique.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a new ULID for the given millisecond timestamp,
// string-encoded. Concurrent calls for the same millisecond are kept
// monotonic by ulid.Monotonic.
func NewEventID(timestampMs int64) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	t := ulid.Time(uint64(timestampMs))
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return id.String()
}

// NewEventIDNow is NewEventID at the current wall-clock time.
func NewEventIDNow() string {
	return NewEventID(time.Now().UnixMilli())
}

// New returns a random UUID for topics, relationships, grips, and vector
// metadata records, none of which need time-ordering.
func New() string {
	return uuid.NewString()
}
