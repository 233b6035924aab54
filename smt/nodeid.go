package smt

import (
	"encoding/binary"

	"github.com/forestrie/go-merklebench/nodehash"
)

const (
	// NodePrefix leads every smt node id in the store.
	NodePrefix = 'S'

	// nodeKeySize covers prefix, depth and address. The version follows.
	nodeKeySize = 1 + 2 + nodehash.Size
	nodeIDSize  = nodeKeySize + 8
)

// nodeKey identifies a tree position independent of version.
type nodeKey [nodeKeySize]byte

// keyAt returns the key of the node at depth on the path to addr. Address bits
// at and beyond depth are cleared so every address in the subtree agrees.
func keyAt(depth int, addr nodehash.Digest) nodeKey {
	var k nodeKey
	k[0] = NodePrefix
	binary.BigEndian.PutUint16(k[1:3], uint16(depth))
	masked := maskAddress(addr, depth)
	copy(k[3:], masked[:])
	return k
}

func (k nodeKey) id(version uint64) []byte {
	id := make([]byte, nodeIDSize)
	copy(id, k[:])
	binary.BigEndian.PutUint64(id[nodeKeySize:], version)
	return id
}

// bitAt returns bit i of addr, most significant first.
func bitAt(addr nodehash.Digest, i int) byte {
	return (addr[i/8] >> (7 - uint(i%8))) & 1
}

func flipBit(addr nodehash.Digest, i int) nodehash.Digest {
	addr[i/8] ^= 1 << (7 - uint(i%8))
	return addr
}

func maskAddress(addr nodehash.Digest, depth int) nodehash.Digest {
	var out nodehash.Digest
	full := depth / 8
	copy(out[:full], addr[:full])
	if rem := depth % 8; rem != 0 {
		out[full] = addr[full] & (0xff << (8 - uint(rem)))
	}
	return out
}

// IndexKey encodes a numeric index as an 8 byte big endian key.
func IndexKey(i uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, i)
}
