package smt

import "github.com/forestrie/go-merklebench/nodehash"

// DefaultHashes returns Z[0..depth], the roots of empty subtrees at every
// depth. Z[depth] is the empty leaf and Z[0] the empty tree root.
func DefaultHashes(hasher *nodehash.Hasher, depth int) []nodehash.Digest {
	z := make([]nodehash.Digest, depth+1)
	z[depth] = hasher.HashLeaf(nil)
	for d := depth - 1; d >= 0; d-- {
		z[d] = hasher.HashNode(z[d+1], z[d+1])
	}
	return z
}
