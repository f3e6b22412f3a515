// Package indexvector implements the approximate-nearest-neighbour index
// over TOC node and grip embeddings, backed by github.com/blevesearch/go-faiss
// with a metadata sidecar in a storage.Engine. It is an outbox.Adapter.
package indexvector

import (
	"sync"
	"sync/atomic"

	faiss "github.com/blevesearch/go-faiss"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/types"
)

// IndexType identifies this adapter to the outbox pipeline's checkpoints.
const IndexType = "vector"

const factoryDescription = "IDMap2,Flat"

// Embedder is the external collaborator that turns text into a
// fixed-dimension vector. Called without holding the index's write lock.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// Indexer is the vector indexer. ann sits behind mu: concurrent Search
// calls take the read lock, insertion and removal take the write lock.
type Indexer struct {
	mu       sync.RWMutex
	ann      faiss.Index
	annPath  string
	dim      int
	meta     storage.Engine
	toc      *toc.Store
	embedder Embedder
	nextID   uint64
}

// Open loads the ANN index from annPath (creating an empty one if
// absent) and recovers the vector id counter from the metadata sidecar.
func Open(annPath string, dim int, meta storage.Engine, tocStore *toc.Store, embedder Embedder) (*Indexer, error) {
	ann, err := faiss.ReadIndex(annPath, 0)
	if err != nil {
		ann, err = faiss.IndexFactory(dim, factoryDescription, faiss.MetricInnerProduct)
		if err != nil {
			return nil, merrors.Wrap(merrors.Storage, "indexvector.Open", err)
		}
	}

	ix := &Indexer{ann: ann, annPath: annPath, dim: dim, meta: meta, toc: tocStore, embedder: embedder}
	if key, _, found, err := meta.Last(storage.CFVectorMeta); err != nil {
		return nil, merrors.Wrap(merrors.Storage, "indexvector.Open", err)
	} else if found {
		ix.nextID = decodeVectorID(key) + 1
	}
	return ix, nil
}

// IndexType satisfies outbox.Adapter.
func (ix *Indexer) IndexType() string { return IndexType }

// IndexDocument implements the Index_item algorithm from the vector
// indexer component: skip if already indexed, skip on empty text,
// embed, allocate a vector id, insert, then write the sidecar entry.
func (ix *Indexer) IndexDocument(entry types.OutboxEntry) error {
	if entry.Action != types.ActionUpdateToc || entry.DocID == "" {
		return nil
	}

	if _, found, err := ix.meta.Get(storage.CFVectorByDoc, []byte(entry.DocID)); err != nil {
		return merrors.Wrap(merrors.Storage, "indexvector.IndexDocument", err)
	} else if found {
		return nil
	}

	docType, text, err := ix.resolveText(entry.DocID)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	vector, err := ix.embedder.Embed(text)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "indexvector.IndexDocument", err)
	}

	id := atomic.AddUint64(&ix.nextID, 1) - 1

	ix.mu.Lock()
	addErr := ix.ann.AddWithIDs(vector, []int64{int64(id)})
	ix.mu.Unlock()
	if addErr != nil {
		return merrors.Wrap(merrors.Internal, "indexvector.IndexDocument", addErr)
	}

	entryRecord := types.VectorEntry{
		VectorID:    id,
		DocType:     docType,
		DocID:       entry.DocID,
		CreatedAtMs: types.NowMs(),
		TextPreview: preview(text),
	}
	raw, err := marshalVectorEntry(entryRecord)
	if err != nil {
		return err
	}
	err = ix.meta.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFVectorMeta, vectorIDKey(id), raw); err != nil {
			return err
		}
		return b.Put(storage.CFVectorByDoc, []byte(entry.DocID), vectorIDKey(id))
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "indexvector.IndexDocument", err)
	}
	return nil
}

func (ix *Indexer) resolveText(docID string) (types.DocType, string, error) {
	if node, found, err := ix.toc.GetTocNode(docID); err != nil {
		return "", "", err
	} else if found {
		text := node.Title
		for _, b := range node.Bullets {
			text += " " + b.Text
		}
		for _, kw := range node.Keywords {
			text += " " + kw
		}
		return types.DocTocNode, text, nil
	}

	grip, found, err := ix.toc.GetGrip(docID)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", nil
	}
	return types.DocGrip, grip.Text, nil
}

// RemoveDocument looks up docID's vector id and deletes it from both the
// ANN index and the metadata sidecar.
func (ix *Indexer) RemoveDocument(docID string) error {
	raw, found, err := ix.meta.Get(storage.CFVectorByDoc, []byte(docID))
	if err != nil {
		return merrors.Wrap(merrors.Storage, "indexvector.RemoveDocument", err)
	}
	if !found {
		return nil
	}
	id := decodeVectorID(raw)

	if err := ix.removeIDs([]int64{int64(id)}); err != nil {
		return err
	}

	err = ix.meta.Batch(func(b storage.Batch) error {
		if err := b.Delete(storage.CFVectorMeta, vectorIDKey(id)); err != nil {
			return err
		}
		return b.Delete(storage.CFVectorByDoc, []byte(docID))
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "indexvector.RemoveDocument", err)
	}
	return nil
}

func (ix *Indexer) removeIDs(ids []int64) error {
	selector, err := faiss.NewIDSelectorBatch(ids)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "indexvector.removeIDs", err)
	}
	defer selector.Delete()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, err := ix.ann.RemoveIDs(selector); err != nil {
		return merrors.Wrap(merrors.Internal, "indexvector.removeIDs", err)
	}
	return nil
}

// Commit persists the ANN index to disk. The metadata sidecar is already
// durable (it commits per-batch).
func (ix *Indexer) Commit() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := faiss.WriteIndex(ix.ann, ix.annPath); err != nil {
		return merrors.Wrap(merrors.Storage, "indexvector.Commit", err)
	}
	return nil
}

// Close releases the underlying faiss index.
func (ix *Indexer) Close() error {
	ix.ann.Delete()
	return nil
}

// VectorHit is one ranked nearest-neighbour result.
type VectorHit struct {
	DocType     types.DocType
	DocID       string
	Distance    float32
	TextPreview string
}

// Search returns the k nearest neighbours of query.
func (ix *Indexer) Search(query []float32, k int) ([]VectorHit, error) {
	ix.mu.RLock()
	distances, labels, err := ix.ann.Search(query, int64(k))
	ix.mu.RUnlock()
	if err != nil {
		return nil, merrors.Wrap(merrors.Internal, "indexvector.Search", err)
	}

	hits := make([]VectorHit, 0, len(labels))
	for i, label := range labels {
		if label < 0 {
			continue
		}
		raw, found, err := ix.meta.Get(storage.CFVectorMeta, vectorIDKey(uint64(label)))
		if err != nil {
			return nil, merrors.Wrap(merrors.Storage, "indexvector.Search", err)
		}
		if !found {
			continue
		}
		entry, err := unmarshalVectorEntry(raw)
		if err != nil {
			return nil, err
		}
		hits = append(hits, VectorHit{
			DocType:     entry.DocType,
			DocID:       entry.DocID,
			Distance:    distances[i],
			TextPreview: entry.TextPreview,
		})
	}
	return hits, nil
}

// PruneStats reports how many vectors were removed.
type PruneStats struct {
	Removed int
}

// Prune removes vectors whose CreatedAtMs is older than cutoffMs. The
// underlying TOC nodes and grips are untouched.
func (ix *Indexer) Prune(cutoffMs int64) (PruneStats, error) {
	var expired []int64
	var docIDs []string
	err := ix.meta.ScanPrefix(storage.CFVectorMeta, nil, func(key, value []byte) (bool, error) {
		entry, err := unmarshalVectorEntry(value)
		if err != nil {
			return false, err
		}
		if entry.CreatedAtMs < cutoffMs {
			expired = append(expired, int64(decodeVectorID(key)))
			docIDs = append(docIDs, entry.DocID)
		}
		return true, nil
	})
	if err != nil {
		return PruneStats{}, merrors.Wrap(merrors.Storage, "indexvector.Prune", err)
	}
	if len(expired) == 0 {
		return PruneStats{}, nil
	}

	if err := ix.removeIDs(expired); err != nil {
		return PruneStats{}, err
	}

	err = ix.meta.Batch(func(b storage.Batch) error {
		for i, id := range expired {
			if err := b.Delete(storage.CFVectorMeta, vectorIDKey(uint64(id))); err != nil {
				return err
			}
			if err := b.Delete(storage.CFVectorByDoc, []byte(docIDs[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PruneStats{}, merrors.Wrap(merrors.Storage, "indexvector.Prune", err)
	}
	return PruneStats{Removed: len(expired)}, nil
}

func preview(text string) string {
	const maxLen = 160
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}
