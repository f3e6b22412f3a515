package indexvector

import (
	"encoding/binary"
	"encoding/json"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/types"
)

func vectorIDKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeVectorID(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw)
}

func marshalVectorEntry(entry types.VectorEntry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, merrors.Wrap(merrors.Internal, "indexvector.marshalVectorEntry", err)
	}
	return raw, nil
}

func unmarshalVectorEntry(raw []byte) (types.VectorEntry, error) {
	var entry types.VectorEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return types.VectorEntry{}, merrors.Wrap(merrors.Internal, "indexvector.unmarshalVectorEntry", err)
	}
	return entry, nil
}
