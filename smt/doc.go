// Package smt implements a sparse merkle tree over a fixed width address
// space, persisted as versioned nodes in a write once node store.
//
// Keys are mapped to addresses with nodehash.HashKey and the first Depth bits
// of the address select the leaf, most significant bit first, 0 meaning left.
// Untouched subtrees are represented by precomputed default hashes:
//
//	Z[Depth] = HashLeaf(empty)
//	Z[d]     = HashNode(Z[d+1], Z[d+1])
//
// Because an empty payload hashes to Z[Depth], writing the empty payload
// restores a key to absent.
//
// Every committed update batch increments the tree version and writes the
// nodes on the touched paths under that version. A node id is therefore never
// rewritten and any earlier root, and proofs against it, remain available
// through RootAt and ProveAt.
package smt
