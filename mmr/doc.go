// Package mmr implements an append only Merkle Mountain Range accumulator over
// a write once node store.
//
// # Layout
//
// Nodes are stored in post order: children first, left to right. That order is
// also the order nodes are created in, so appending a leaf writes the leaf and
// then any parents it completes, each at the next free mmr index. Nothing
// already written is ever changed, which is what makes every earlier state of
// the mmr reproducible from the store (see RootAt, ProveAt and
// ProveConsistency).
//
//	3              14
//	             /    \
//	            /      \
//	           /        \
//	          /          \
//	2        6            13           21
//	       /   \        /    \
//	1     2     5      9     12     17     20     24
//	     / \   / \    / \   /  \   /  \   /  \   /  \
//	0   0   1 3   4  7   8 10  11 15  16 18  19 22  23   25
//
// The tree is never materialized. Heights, siblings and parents all follow from
// binary arithmetic on the index (IndexHeight, InclusionProofPath), and the
// peaks follow from the leaf count alone: the set bits of the leaf count are the
// peak heights, tallest first.
//
// # Hashing
//
// Leaves are HashLeaf(payload) and interior nodes HashNode(left, right) from
// package nodehash. The root bags the peaks right to left with HashBag:
//
//	root = HashBag(p0, HashBag(p1, ... HashBag(pn-2, pn-1)))
//
// A single peak is its own root and the empty mmr has the zero digest as root.
// Node hashes do not commit to their position; the position of a proven leaf is
// fixed instead by the proof shape, the path length must equal the height of
// the peak the leaf belongs to, and by the peak count matching the leaf count.
//
// # Proofs
//
// An inclusion proof is the sibling path from the leaf to its peak plus the
// other peaks. Verification recomputes the peak, re-inserts it among the other
// peaks and bags. Proofs encode to CBOR with MarshalBinary.
//
// A consistency proof shows one mmr state is a prefix of a later one by
// proving each earlier peak into the later mmr.
package mmr
