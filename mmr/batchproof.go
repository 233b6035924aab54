package mmr

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/forestrie/go-merklebench/nodehash"
)

var (
	ErrEmptyBatch    = errors.New("mmr: a batch proof needs at least one leaf")
	ErrDuplicateLeaf = errors.New("mmr: leaf repeated in batch")

	errWitnessesExhausted = errors.New("mmr: batch proof has too few nodes")
)

// BatchProof proves several leaves against one bagged root. A witness shared
// by several paths, or computable from other proven leaves, is carried once.
type BatchProof struct {
	// LeafCount identifies the mmr state the proof was made for
	LeafCount   uint64   `cbor:"1,keyasint"`
	LeafIndices []uint64 `cbor:"2,keyasint"`
	// Nodes are the witnesses in the order they are consumed: lowest height
	// first, then by mmr index.
	Nodes []nodehash.Digest `cbor:"3,keyasint"`
	// Peaks are the peaks, tallest first, that commit none of the leaves
	Peaks []nodehash.Digest `cbor:"4,keyasint"`
}

// Len returns the number of digests carried by the proof.
func (p *BatchProof) Len() int { return len(p.Nodes) + len(p.Peaks) }

func (p *BatchProof) MarshalBinary() ([]byte, error) {
	return proofEncMode.Marshal(p)
}

func (p *BatchProof) UnmarshalBinary(data []byte) error {
	return proofDecMode.Unmarshal(data, p)
}

// ProveAll proves the leaves at leafIndices against the current root.
func (a *Accumulator) ProveAll(leafIndices []uint64) (*BatchProof, error) {
	return a.ProveAllAt(leafIndices, a.leafCount)
}

// ProveAllAt proves the leaves at leafIndices against the root of the mmr as
// it was at leafCount leaves. The proof keeps the order of leafIndices.
func (a *Accumulator) ProveAllAt(leafIndices []uint64, leafCount uint64) (*BatchProof, error) {
	if leafCount > a.leafCount {
		return nil, fmt.Errorf("%w: leaf count %d, have %d", ErrIndexOutOfRange, leafCount, a.leafCount)
	}
	if len(leafIndices) == 0 {
		return nil, ErrEmptyBatch
	}

	g := nodeGetter{a.store}
	seen := make(map[uint64]bool, len(leafIndices))
	leaves := make([]batchNode, 0, len(leafIndices))
	for _, li := range leafIndices {
		if li >= leafCount {
			return nil, fmt.Errorf("%w: leaf %d, leaf count %d", ErrIndexOutOfRange, li, leafCount)
		}
		if seen[li] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateLeaf, li)
		}
		seen[li] = true
		d, err := g.Get(MMRIndex(li))
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, batchNode{index: MMRIndex(li), digest: d})
	}

	proof := &BatchProof{
		LeafCount:   leafCount,
		LeafIndices: append([]uint64(nil), leafIndices...),
	}
	reached, err := climbBatch(a.hasher, leafCount, leaves, func(i uint64) (nodehash.Digest, error) {
		d, err := g.Get(i)
		if err != nil {
			return nodehash.Digest{}, err
		}
		proof.Nodes = append(proof.Nodes, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}

	peaks, err := a.peaksAt(leafCount)
	if err != nil {
		return nil, err
	}
	for j, pos := range PosPeaks(MMRSize(leafCount)) {
		if _, ok := reached[pos-1]; !ok {
			proof.Peaks = append(proof.Peaks, peaks[j])
		}
	}
	return proof, nil
}

// VerifyAll is VerifyAll using the accumulator's hasher.
func (a *Accumulator) VerifyAll(root nodehash.Digest, payloads [][]byte, proof *BatchProof) bool {
	return VerifyAll(a.hasher, root, payloads, proof)
}

// VerifyAll reports whether payloads[j] is the leaf at proof.LeafIndices[j],
// for every j, in the mmr committed by root. A single wrong payload fails the
// whole batch. Malformed proofs verify false.
func VerifyAll(hasher *nodehash.Hasher, root nodehash.Digest, payloads [][]byte, proof *BatchProof) bool {
	if proof == nil || len(proof.LeafIndices) == 0 || len(payloads) != len(proof.LeafIndices) {
		return false
	}
	seen := make(map[uint64]bool, len(payloads))
	leaves := make([]batchNode, 0, len(payloads))
	for j, li := range proof.LeafIndices {
		if li >= proof.LeafCount || seen[li] {
			return false
		}
		seen[li] = true
		leaves = append(leaves, batchNode{index: MMRIndex(li), digest: hasher.HashLeaf(payloads[j])})
	}

	next := 0
	reached, err := climbBatch(hasher, proof.LeafCount, leaves, func(uint64) (nodehash.Digest, error) {
		if next >= len(proof.Nodes) {
			return nodehash.Digest{}, errWitnessesExhausted
		}
		next++
		return proof.Nodes[next-1], nil
	})
	if err != nil || next != len(proof.Nodes) {
		return false
	}

	var peaks []nodehash.Digest
	rest := 0
	for _, pos := range PosPeaks(MMRSize(proof.LeafCount)) {
		if d, ok := reached[pos-1]; ok {
			peaks = append(peaks, d)
			continue
		}
		if rest >= len(proof.Peaks) {
			return false
		}
		peaks = append(peaks, proof.Peaks[rest])
		rest++
	}
	if rest != len(proof.Peaks) {
		return false
	}
	return BagPeaks(hasher, peaks) == root
}

type batchNode struct {
	height uint64
	index  uint64
	digest nodehash.Digest
}

func batchNodeLess(a, b batchNode) bool {
	if a.height != b.height {
		return a.height < b.height
	}
	return a.index < b.index
}

// climbBatch hashes the leaves up to the peaks of the mmr with leafCount
// leaves and returns the peaks it reached, by mmr index. Nodes are taken
// lowest first, so two known siblings always meet before either climbs on.
// witness supplies each sibling that cannot be computed from the leaves.
func climbBatch(
	hasher *nodehash.Hasher, leafCount uint64, leaves []batchNode,
	witness func(i uint64) (nodehash.Digest, error)) (map[uint64]nodehash.Digest, error) {

	isPeak := make(map[uint64]bool)
	for _, pos := range PosPeaks(MMRSize(leafCount)) {
		isPeak[pos-1] = true
	}

	q := btree.NewG(2, batchNodeLess)
	for _, n := range leaves {
		q.ReplaceOrInsert(n)
	}

	reached := make(map[uint64]nodehash.Digest)
	for q.Len() > 0 {
		n, _ := q.DeleteMin()
		if isPeak[n.index] {
			reached[n.index] = n.digest
			continue
		}

		span := uint64(2<<n.height) - 1
		right := IndexHeight(n.index+1) > n.height
		sibling := n.index + span
		if right {
			sibling = n.index - span
		}

		var sd nodehash.Digest
		if s, ok := q.Delete(batchNode{height: n.height, index: sibling}); ok {
			sd = s.digest
		} else {
			var err error
			if sd, err = witness(sibling); err != nil {
				return nil, err
			}
		}

		parent := batchNode{height: n.height + 1}
		if right {
			parent.index = n.index + 1
			parent.digest = hasher.HashNode(sd, n.digest)
		} else {
			parent.index = sibling + 1
			parent.digest = hasher.HashNode(n.digest, sd)
		}
		q.ReplaceOrInsert(parent)
	}
	return reached, nil
}
