package mmr

import "encoding/binary"

// NodePrefix leads every mmr node id in the store.
const NodePrefix = 'M'

const NodeIDSize = 9

// NodeID returns the store id of the node at mmrIndex. Big endian keeps ids in
// append order.
func NodeID(mmrIndex uint64) []byte {
	id := make([]byte, NodeIDSize)
	id[0] = NodePrefix
	binary.BigEndian.PutUint64(id[1:], mmrIndex)
	return id
}
