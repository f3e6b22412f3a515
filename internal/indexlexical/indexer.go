// Package indexlexical implements the term-level inverted index over TOC
// nodes and grips, backed by an embedded bleve index. It is an
// outbox.Adapter: IndexDocument stages an upsert, RemoveDocument stages a
// delete, and nothing is visible to search until Commit.
package indexlexical

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/types"
)

// IndexType identifies this adapter to the outbox pipeline's checkpoints.
const IndexType = "lexical"

const minQueryLen = 3

// doc is the searchable projection of a TocNode or Grip.
type doc struct {
	DocID       string
	DocType     string
	Level       string
	Text        string
	TimestampMs int64
	Agent       string
}

// Indexer is the lexical indexer.
type Indexer struct {
	mu      sync.RWMutex
	index   bleve.Index
	toc     *toc.Store
	pending *bleve.Batch
}

// Open opens the bleve index at path, creating it with a fresh mapping if
// it doesn't already exist.
func Open(path string, tocStore *toc.Store) (*Indexer, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, merrors.Wrap(merrors.Storage, "indexlexical.Open", err)
		}
	}
	return &Indexer{index: idx, toc: tocStore, pending: idx.NewBatch()}, nil
}

func buildMapping() *mapping.IndexMapping {
	return bleve.NewIndexMapping()
}

// IndexType satisfies outbox.Adapter.
func (ix *Indexer) IndexType() string { return IndexType }

// IndexDocument resolves an ActionUpdateToc entry's doc id to its TocNode
// or Grip content and stages it for the next Commit. Entries that don't
// yet name a doc (plain event ingestion) are skipped.
func (ix *Indexer) IndexDocument(entry types.OutboxEntry) error {
	if entry.Action != types.ActionUpdateToc || entry.DocID == "" {
		return nil
	}
	d, found, err := ix.resolve(entry.DocID)
	if err != nil {
		return err
	}
	if !found || d.Text == "" {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.pending.Index(d.DocID, d)
}

func (ix *Indexer) resolve(docID string) (doc, bool, error) {
	if node, found, err := ix.toc.GetTocNode(docID); err != nil {
		return doc{}, false, err
	} else if found {
		parts := make([]string, 0, len(node.Bullets)+2)
		parts = append(parts, node.Title)
		for _, b := range node.Bullets {
			parts = append(parts, b.Text)
		}
		parts = append(parts, node.Keywords...)
		agent := ""
		if len(node.ContributingAgents) > 0 {
			agent = node.ContributingAgents[0]
		}
		return doc{
			DocID:       node.ID,
			DocType:     string(types.DocTocNode),
			Level:       string(node.Level),
			Text:        strings.Join(parts, " "),
			TimestampMs: node.StartMs,
			Agent:       agent,
		}, true, nil
	}

	grip, found, err := ix.toc.GetGrip(docID)
	if err != nil {
		return doc{}, false, err
	}
	if !found {
		return doc{}, false, nil
	}
	return doc{
		DocID:   grip.ID,
		DocType: string(types.DocGrip),
		Text:    grip.Text,
	}, true, nil
}

// RemoveDocument stages a delete-by-id for the next Commit.
func (ix *Indexer) RemoveDocument(docID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pending.Delete(docID)
	return nil
}

// Commit flushes the staged batch; results are invisible to Search until
// this returns successfully.
func (ix *Indexer) Commit() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.pending.Size() == 0 {
		return nil
	}
	if err := ix.index.Batch(ix.pending); err != nil {
		return merrors.Wrap(merrors.Storage, "indexlexical.Commit", err)
	}
	ix.pending = ix.index.NewBatch()
	return nil
}

// Close releases the underlying bleve index.
func (ix *Indexer) Close() error {
	return ix.index.Close()
}

// SearchResult is one ranked hit.
type SearchResult struct {
	DocID          string
	DocType        string
	Score          float64
	MatchedPreview string
	Agent          string
}

// SearchFilters narrows a Search call.
type SearchFilters struct {
	DocType string
	Level   string
	Agent   string
}

// Search runs q against the committed index, returning up to limit hits
// ordered by score descending. Queries shorter than three characters
// (after trimming) return no results.
func (ix *Indexer) Search(q string, limit int, filters *SearchFilters) ([]SearchResult, error) {
	normalized := strings.TrimSpace(q)
	if len(normalized) < minQueryLen {
		return nil, nil
	}

	textQuery := bleve.NewMatchQuery(normalized)
	textQuery.SetField("Text")

	var finalQuery query.Query = textQuery
	if filters != nil {
		conj := bleve.NewConjunctionQuery(textQuery)
		if filters.DocType != "" {
			conj.AddQuery(fieldMatch("DocType", filters.DocType))
		}
		if filters.Level != "" {
			conj.AddQuery(fieldMatch("Level", filters.Level))
		}
		if filters.Agent != "" {
			conj.AddQuery(fieldMatch("Agent", filters.Agent))
		}
		finalQuery = conj
	}

	req := bleve.NewSearchRequest(finalQuery)
	req.Size = limit
	req.Fields = []string{"DocType", "Text", "Agent"}

	ix.mu.RLock()
	res, err := ix.index.Search(req)
	ix.mu.RUnlock()
	if err != nil {
		return nil, merrors.Wrap(merrors.Internal, "indexlexical.Search", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, SearchResult{
			DocID:          hit.ID,
			DocType:        stringField(hit.Fields, "DocType"),
			Score:          hit.Score,
			MatchedPreview: preview(stringField(hit.Fields, "Text")),
			Agent:          stringField(hit.Fields, "Agent"),
		})
	}
	return results, nil
}

func fieldMatch(field, value string) query.Query {
	q := bleve.NewMatchQuery(value)
	q.SetField(field)
	return q
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func preview(text string) string {
	const maxLen = 160
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}

// PruneStats reports how many documents were removed per level.
type PruneStats struct {
	DeletedByLevel map[string]int
	Total          int
	DryRun         bool
}

// protectedLevels are never pruned regardless of the requested filter.
var protectedLevels = map[string]bool{
	string(types.LevelMonth): true,
	string(types.LevelYear):  true,
}

// Prune deletes documents older than ageDays, optionally restricted to a
// single level, never touching Month or Year level documents.
func (ix *Indexer) Prune(ageDays int, levelFilter string, dryRun bool) (PruneStats, error) {
	cutoff := types.NowMs() - int64(ageDays)*86_400_000

	rangeQuery := bleve.NewNumericRangeQuery(nil, floatPtr(float64(cutoff)))
	rangeQuery.SetField("TimestampMs")

	req := bleve.NewSearchRequest(rangeQuery)
	req.Size = 1_000_000
	req.Fields = []string{"Level"}

	ix.mu.RLock()
	res, err := ix.index.Search(req)
	ix.mu.RUnlock()
	if err != nil {
		return PruneStats{}, merrors.Wrap(merrors.Internal, "indexlexical.Prune", err)
	}

	stats := PruneStats{DeletedByLevel: map[string]int{}, DryRun: dryRun}
	var toDelete []string
	for _, hit := range res.Hits {
		level := stringField(hit.Fields, "Level")
		if protectedLevels[level] {
			continue
		}
		if levelFilter != "" && level != levelFilter {
			continue
		}
		stats.DeletedByLevel[level]++
		stats.Total++
		toDelete = append(toDelete, hit.ID)
	}

	if dryRun || len(toDelete) == 0 {
		return stats, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	batch := ix.index.NewBatch()
	for _, id := range toDelete {
		batch.Delete(id)
	}
	if err := ix.index.Batch(batch); err != nil {
		return stats, merrors.Wrap(merrors.Storage, "indexlexical.Prune", err)
	}
	return stats, nil
}

func floatPtr(v float64) *float64 { return &v }
