package mmr

import (
	"fmt"

	"github.com/forestrie/go-merklebench/nodehash"
)

// indexStoreGetter reads mmr nodes by mmr index.
type indexStoreGetter interface {
	Get(i uint64) (nodehash.Digest, error)
}

// InclusionProof reads the sibling path for mmr index i in the mmr whose last
// node is mmrLastIndex. The path stops below the peak committing i.
//
// In the mmr of 26 nodes the proof for 15 is [H(16), H(20)], its peak is 21:
//
//	2        6            13           21
//	       /   \        /    \
//	1     2     5      9     12     17     20     24
//	     / \   / \    / \   /  \   /  \   /  \   /  \
//	0   0   1 3   4  7   8 10  11 15  16 18  19 22  23   25
func InclusionProof(store indexStoreGetter, mmrLastIndex uint64, i uint64) ([]nodehash.Digest, error) {
	if i > mmrLastIndex {
		return nil, fmt.Errorf("%w: node %d, last %d", ErrIndexOutOfRange, i, mmrLastIndex)
	}

	path := InclusionProofPath(mmrLastIndex, i)
	proof := make([]nodehash.Digest, 0, len(path))
	for _, sibling := range path {
		d, err := store.Get(sibling)
		if err != nil {
			return nil, err
		}
		proof = append(proof, d)
	}
	return proof, nil
}

// InclusionProofPath returns the mmr indices of the witnesses for mmr index i,
// lowest first. Interior nodes may be proven too.
func InclusionProofPath(mmrLastIndex uint64, i uint64) []uint64 {
	var path []uint64
	for height := IndexHeight(i); ; height++ {
		// a subtree of this height spans 2^(height+1)-1 nodes
		span := uint64(2<<height) - 1

		var sibling uint64
		if IndexHeight(i+1) > height {
			// i is a right child, its parent follows it directly
			sibling = i - span
			i++
		} else {
			// i is a left child, its parent follows the right subtree
			sibling = i + span
			i = sibling + 1
		}
		if sibling > mmrLastIndex {
			return path
		}
		path = append(path, sibling)
	}
}
