package smt

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/forestrie/go-merklebench/nodehash"
)

var (
	ErrEmptyBatch   = errors.New("smt: a batch proof needs at least one key")
	ErrDuplicateKey = errors.New("smt: two keys in the batch address the same leaf")
)

// BatchProof proves the values of several keys against one root. Paths are
// merged: where a subtree holds proven keys on both sides no witness is
// needed, and each subtree with proven keys on one side only carries a single
// sibling. Sibling slots are numbered in depth first, left to right order and
// bit j of Bitmap, most significant first, is set when slot j is carried in
// Siblings. Clear bits stand for the default hash of the slot's depth.
type BatchProof struct {
	Version  uint64            `cbor:"1,keyasint"`
	Depth    uint16            `cbor:"2,keyasint"`
	Bitmap   []byte            `cbor:"3,keyasint"`
	Siblings []nodehash.Digest `cbor:"4,keyasint,omitempty"`
}

// Encode serializes the proof. Defaults are already elided.
func (p *BatchProof) Encode() ([]byte, error) {
	return proofEncMode.Marshal(p)
}

// DecodeBatchProof reverses Encode.
func DecodeBatchProof(data []byte) (*BatchProof, error) {
	var p BatchProof
	if err := proofDecMode.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofEncoding, err)
	}
	return &p, nil
}

// ProveAll proves every key in keys against the current root. Absent keys
// prove as the empty payload.
func (t *Tree) ProveAll(keys [][]byte) (*BatchProof, error) {
	return t.ProveAllAt(keys, t.version)
}

// ProveAllAt proves every key in keys against the root as of version.
func (t *Tree) ProveAllAt(keys [][]byte, version uint64) (*BatchProof, error) {
	if version > t.version {
		return nil, fmt.Errorf("%w: %d, current %d", ErrVersionOutOfRange, version, t.version)
	}
	leaves, err := sortBatch(t.hasher, t.depth, keys, func(_ int, addr nodehash.Digest) (nodehash.Digest, error) {
		return t.read(nil, t.depth, addr, version)
	})
	if err != nil {
		return nil, err
	}

	proof := &BatchProof{Version: version, Depth: uint16(t.depth)}
	slot := 0
	_, err = climbBatch(t.hasher, t.depth, 0, leaves, func(depth int, addr nodehash.Digest) (nodehash.Digest, error) {
		s, err := t.read(nil, depth, addr, version)
		if err != nil {
			return nodehash.Digest{}, err
		}
		if slot%8 == 0 {
			proof.Bitmap = append(proof.Bitmap, 0)
		}
		if s != t.defaults[depth] {
			proof.Bitmap[slot/8] |= 1 << (7 - uint(slot%8))
			proof.Siblings = append(proof.Siblings, s)
		}
		slot++
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// VerifyAll is VerifyAll using the tree's hasher.
func (t *Tree) VerifyAll(root nodehash.Digest, keys, payloads [][]byte, proof *BatchProof) bool {
	return VerifyAll(t.hasher, root, keys, payloads, proof)
}

// VerifyAll reports whether payloads[j] is the value of keys[j], for every j,
// in the tree committed by root. An empty payload claims the key is absent.
// A single wrong payload fails the whole batch. Malformed proofs verify
// false.
func VerifyAll(hasher *nodehash.Hasher, root nodehash.Digest, keys, payloads [][]byte, proof *BatchProof) bool {
	if proof == nil || len(keys) != len(payloads) {
		return false
	}
	depth := int(proof.Depth)
	if depth < 1 || depth > MaxDepth {
		return false
	}
	leaves, err := sortBatch(hasher, depth, keys, func(j int, _ nodehash.Digest) (nodehash.Digest, error) {
		return hasher.HashLeaf(payloads[j]), nil
	})
	if err != nil {
		return false
	}

	z := DefaultHashes(hasher, depth)
	slot, next := 0, 0
	got, err := climbBatch(hasher, depth, 0, leaves, func(d int, _ nodehash.Digest) (nodehash.Digest, error) {
		if slot/8 >= len(proof.Bitmap) {
			return nodehash.Digest{}, ErrProofEncoding
		}
		carried := proof.Bitmap[slot/8]&(1<<(7-uint(slot%8))) != 0
		slot++
		if !carried {
			return z[d], nil
		}
		if next >= len(proof.Siblings) {
			return nodehash.Digest{}, ErrProofEncoding
		}
		next++
		return proof.Siblings[next-1], nil
	})
	if err != nil || next != len(proof.Siblings) || len(proof.Bitmap) != (slot+7)/8 {
		return false
	}
	// bits past the last slot must be clear
	ones := 0
	for _, b := range proof.Bitmap {
		ones += bits.OnesCount8(b)
	}
	return ones == next && got == root
}

type batchLeaf struct {
	addr nodehash.Digest
	leaf nodehash.Digest
}

// sortBatch orders the leaves for keys by address. Keys that share the first
// depth address bits land on the same leaf and are refused.
func sortBatch(
	hasher *nodehash.Hasher, depth int, keys [][]byte,
	leafFor func(j int, addr nodehash.Digest) (nodehash.Digest, error)) ([]batchLeaf, error) {

	if len(keys) == 0 {
		return nil, ErrEmptyBatch
	}
	leaves := make([]batchLeaf, len(keys))
	for j, key := range keys {
		addr := maskAddress(hasher.HashKey(key), depth)
		leaf, err := leafFor(j, addr)
		if err != nil {
			return nil, err
		}
		leaves[j] = batchLeaf{addr: addr, leaf: leaf}
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i].addr[:], leaves[j].addr[:]) < 0 })
	for j := 1; j < len(leaves); j++ {
		if leaves[j].addr == leaves[j-1].addr {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, leaves[j].addr)
		}
	}
	return leaves, nil
}

// climbBatch returns the digest of the node at depth d whose subtree holds
// leaves. The leaves agree on their first d address bits. When they all lie
// on one side, witness supplies the other child, at depth d+1, before the
// proven side is descended.
func climbBatch(
	hasher *nodehash.Hasher, depth, d int, leaves []batchLeaf,
	witness func(depth int, addr nodehash.Digest) (nodehash.Digest, error)) (nodehash.Digest, error) {

	if d == depth {
		return leaves[0].leaf, nil
	}
	split := sort.Search(len(leaves), func(i int) bool { return bitAt(leaves[i].addr, d) == 1 })

	if split > 0 && split < len(leaves) {
		left, err := climbBatch(hasher, depth, d+1, leaves[:split], witness)
		if err != nil {
			return nodehash.Digest{}, err
		}
		right, err := climbBatch(hasher, depth, d+1, leaves[split:], witness)
		if err != nil {
			return nodehash.Digest{}, err
		}
		return hasher.HashNode(left, right), nil
	}

	sibling, err := witness(d+1, flipBit(leaves[0].addr, d))
	if err != nil {
		return nodehash.Digest{}, err
	}
	child, err := climbBatch(hasher, depth, d+1, leaves, witness)
	if err != nil {
		return nodehash.Digest{}, err
	}
	if split == 0 {
		return hasher.HashNode(sibling, child), nil
	}
	return hasher.HashNode(child, sibling), nil
}
