package toc

import (
	"encoding/binary"
	"fmt"
)

// versionedKey builds the key a specific version of a TOC node is stored
// under. Node ids are formed as "{level}:{natural key}" (e.g.
// "Day:2024-05-01"), so a plain prefix scan over the latest-pointer column
// family for "{level}:" yields every node at that level.
func versionedKey(id string, version uint32) []byte {
	return []byte(fmt.Sprintf("toc:%s:v%06d", id, version))
}

func encodeVersion(version uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, version)
	return buf
}

func decodeVersion(raw []byte) uint32 {
	return binary.BigEndian.Uint32(raw)
}

func gripByNodeKey(nodeID, gripID string) []byte {
	return []byte(nodeID + ":" + gripID)
}
