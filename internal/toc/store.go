// Package toc implements the versioned table-of-contents store and the
// grip store that grounds its bullets back to the event stream, both
// living in the same storage.Engine as the event store.
package toc

import (
	"encoding/json"
	"strings"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/types"
)

// Store is the TOC and grip store.
type Store struct {
	engine storage.Engine
}

// Open returns a ready Store. There is no recovery step: every node and
// grip is addressed directly by id.
func Open(engine storage.Engine) *Store {
	return &Store{engine: engine}
}

// PutTocNode writes node under the next version for its id and advances
// the latest pointer in the same atomic batch. The returned node has its
// Version field set to the number that was actually written.
func (s *Store) PutTocNode(node types.TocNode) (types.TocNode, error) {
	if node.ID == "" {
		return types.TocNode{}, merrors.New(merrors.InvalidArgument, "toc.PutTocNode", "node id is required")
	}

	current, found, err := s.engine.Get(storage.CFTocLatest, []byte(node.ID))
	if err != nil {
		return types.TocNode{}, merrors.Wrap(merrors.Storage, "toc.PutTocNode", err)
	}
	var nextVersion uint32 = 1
	if found {
		nextVersion = decodeVersion(current) + 1
	}
	node.Version = nextVersion

	raw, err := json.Marshal(node)
	if err != nil {
		return types.TocNode{}, merrors.Wrap(merrors.Internal, "toc.PutTocNode", err)
	}

	err = s.engine.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFTocNodes, versionedKey(node.ID, nextVersion), raw); err != nil {
			return err
		}
		return b.Put(storage.CFTocLatest, []byte(node.ID), encodeVersion(nextVersion))
	})
	if err != nil {
		return types.TocNode{}, merrors.Wrap(merrors.Storage, "toc.PutTocNode", err)
	}
	return node, nil
}

// GetTocNode performs the two-hop read: latest pointer, then the
// versioned node it names.
func (s *Store) GetTocNode(id string) (types.TocNode, bool, error) {
	version, found, err := s.engine.Get(storage.CFTocLatest, []byte(id))
	if err != nil {
		return types.TocNode{}, false, merrors.Wrap(merrors.Storage, "toc.GetTocNode", err)
	}
	if !found {
		return types.TocNode{}, false, nil
	}
	return s.getVersion(id, decodeVersion(version))
}

// GetTocNodeVersion returns a specific historical version of a node.
func (s *Store) GetTocNodeVersion(id string, version uint32) (types.TocNode, bool, error) {
	return s.getVersion(id, version)
}

func (s *Store) getVersion(id string, version uint32) (types.TocNode, bool, error) {
	raw, found, err := s.engine.Get(storage.CFTocNodes, versionedKey(id, version))
	if err != nil {
		return types.TocNode{}, false, merrors.Wrap(merrors.Storage, "toc.getVersion", err)
	}
	if !found {
		return types.TocNode{}, false, nil
	}
	var node types.TocNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return types.TocNode{}, false, merrors.Wrap(merrors.Internal, "toc.getVersion", err)
	}
	return node, true, nil
}

// windowOverlaps reports whether node's interval overlaps window. A zero
// StartMs or EndMs is treated as unbounded on that side.
func windowOverlaps(w types.TimeWindow, node types.TocNode) bool {
	if w.StartMs != 0 && node.EndMs < w.StartMs {
		return false
	}
	if w.EndMs != 0 && node.StartMs > w.EndMs {
		return false
	}
	return true
}

// GetTocNodesByLevel forward-scans the latest-pointer prefix for level
// (node ids are formed "{level}:{natural key}"), optionally filtered to
// nodes whose interval overlaps window.
func (s *Store) GetTocNodesByLevel(level types.TocLevel, window *types.TimeWindow) ([]types.TocNode, error) {
	prefix := []byte(string(level) + ":")
	var nodes []types.TocNode
	err := s.engine.ScanPrefix(storage.CFTocLatest, prefix, func(key, value []byte) (bool, error) {
		id := string(key)
		node, found, err := s.getVersion(id, decodeVersion(value))
		if err != nil {
			return false, err
		}
		if !found {
			return true, nil
		}
		if window == nil || windowOverlaps(*window, node) {
			nodes = append(nodes, node)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetChildNodes resolves parentID and fetches each of its children.
func (s *Store) GetChildNodes(parentID string) ([]types.TocNode, error) {
	parent, found, err := s.GetTocNode(parentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, merrors.New(merrors.NotFound, "toc.GetChildNodes", "parent node not found: "+parentID)
	}
	children := make([]types.TocNode, 0, len(parent.ChildIDs))
	for _, childID := range parent.ChildIDs {
		child, found, err := s.GetTocNode(childID)
		if err != nil {
			return nil, err
		}
		if found {
			children = append(children, child)
		}
	}
	return children, nil
}

// PutGrip writes grip under its id and, if OwningNodeID is set, a marker
// key enabling GetGripsForNode.
func (s *Store) PutGrip(grip types.Grip) error {
	if grip.ID == "" {
		return merrors.New(merrors.InvalidArgument, "toc.PutGrip", "grip id is required")
	}
	raw, err := json.Marshal(grip)
	if err != nil {
		return merrors.Wrap(merrors.Internal, "toc.PutGrip", err)
	}
	err = s.engine.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFGrips, []byte(grip.ID), raw); err != nil {
			return err
		}
		if grip.OwningNodeID != "" {
			return b.Put(storage.CFGripsByNode, gripByNodeKey(grip.OwningNodeID, grip.ID), []byte{})
		}
		return nil
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "toc.PutGrip", err)
	}
	return nil
}

// GetGrip looks up a single grip by id.
func (s *Store) GetGrip(id string) (types.Grip, bool, error) {
	raw, found, err := s.engine.Get(storage.CFGrips, []byte(id))
	if err != nil {
		return types.Grip{}, false, merrors.Wrap(merrors.Storage, "toc.GetGrip", err)
	}
	if !found {
		return types.Grip{}, false, nil
	}
	var grip types.Grip
	if err := json.Unmarshal(raw, &grip); err != nil {
		return types.Grip{}, false, merrors.Wrap(merrors.Internal, "toc.GetGrip", err)
	}
	return grip, true, nil
}

// GetGripsForNode prefix-scans the by-node marker index.
func (s *Store) GetGripsForNode(nodeID string) ([]types.Grip, error) {
	prefix := []byte(nodeID + ":")
	var grips []types.Grip
	err := s.engine.ScanPrefix(storage.CFGripsByNode, prefix, func(key, _ []byte) (bool, error) {
		gripID := strings.TrimPrefix(string(key), string(prefix))
		grip, found, err := s.GetGrip(gripID)
		if err != nil {
			return false, err
		}
		if found {
			grips = append(grips, grip)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return grips, nil
}

// DeleteGrip removes grip and, if it was linked to a node, its marker
// key too.
func (s *Store) DeleteGrip(id string) error {
	grip, found, err := s.GetGrip(id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	err = s.engine.Batch(func(b storage.Batch) error {
		if err := b.Delete(storage.CFGrips, []byte(id)); err != nil {
			return err
		}
		if grip.OwningNodeID != "" {
			return b.Delete(storage.CFGripsByNode, gripByNodeKey(grip.OwningNodeID, id))
		}
		return nil
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "toc.DeleteGrip", err)
	}
	return nil
}
