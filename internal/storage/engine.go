// Package storage defines the column-family key-value engine every other
// memd component is built on: the embedded database holding events, the
// outbox, TOC nodes, grips, checkpoints, usage counters, and the topic
// graph.
package storage

// Column families, matching the isolated key spaces named in this
// project's data model.
const (
	CFEvents             = "events"
	CFOutbox             = "outbox"
	CFTocNodes           = "toc_nodes"
	CFTocLatest          = "toc_latest"
	CFGrips              = "grips"
	CFGripsByNode        = "grips_by_node"
	CFCheckpoints        = "checkpoints"
	CFUsageCounters      = "usage_counters"
	CFTopics             = "topics"
	CFTopicLinks         = "topic_links"
	CFTopicLinksByNode   = "topic_links_by_node"
	CFTopicRelationships = "topic_relationships"

	// The vector indexer's metadata sidecar normally lives in its own
	// database file (vector.meta.db), but these column families are
	// still declared here so any Engine - including the main one in
	// tests or single-file deployments - can host them lazily. The
	// vector id counter is recovered the same way the outbox sequence
	// is: Engine.Last(CFVectorMeta).
	CFVectorMeta  = "vector_meta"
	CFVectorByDoc = "vector_by_doc"
)

// AllColumnFamilies lists every keyspace an Engine must create lazily on
// open, so old databases keep working as new ones are added.
var AllColumnFamilies = []string{
	CFEvents, CFOutbox, CFTocNodes, CFTocLatest, CFGrips, CFGripsByNode,
	CFCheckpoints, CFUsageCounters, CFTopics, CFTopicLinks,
	CFTopicLinksByNode, CFTopicRelationships,
	CFVectorMeta, CFVectorByDoc,
}

// ScanFunc is called for each key/value pair visited by a scan. Returning
// false stops the scan early without an error.
type ScanFunc func(key, value []byte) (bool, error)

// Engine is the column-family key-value store every higher-level
// component (event store, TOC store, topic graph, usage tracker) reads
// and writes through. A single Engine instance owns one project's
// database.
type Engine interface {
	// Put writes value under key in column family cf.
	Put(cf string, key, value []byte) error
	// Get reads the value for key in cf. found is false if absent.
	Get(cf string, key []byte) (value []byte, found bool, err error)
	// Delete removes key from cf. Deleting an absent key is not an error.
	Delete(cf string, key []byte) error
	// ScanPrefix visits every key in cf with the given prefix, in
	// ascending key order.
	ScanPrefix(cf string, prefix []byte, fn ScanFunc) error
	// ScanRange visits every key in cf with start <= key < end, in
	// ascending key order. A nil end scans to the end of the keyspace.
	ScanRange(cf string, start, end []byte, fn ScanFunc) error
	// Last returns the lexicographically greatest key/value pair in cf,
	// used to recover a monotonic counter on open without a full scan.
	Last(cf string) (key, value []byte, found bool, err error)
	// Batch runs fn with a Batch that stages writes, committing them
	// all atomically (all-or-nothing) when fn returns nil, and
	// discarding them if fn returns an error.
	Batch(fn func(b Batch) error) error
	// Compact reclaims space left by the append-heavy, prune-occasional
	// write pattern (WAL checkpoint + VACUUM for the sqlite engine).
	Compact() error
	// Close releases the underlying database handle.
	Close() error
}

// Batch stages a group of column-family writes for atomic commit.
type Batch interface {
	Put(cf string, key, value []byte) error
	Delete(cf string, key []byte) error
}
