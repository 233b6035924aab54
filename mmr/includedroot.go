package mmr

import "github.com/forestrie/go-merklebench/nodehash"

// IncludedRoot calculates the accumulator peak for the provided proof and node
// value. Note that both interior and leaf nodes are handled identically
//
// Arguments:
//   - i is the mmr index the nodeHash is to be shown at
//   - nodeHash the value whose inclusion is to be shown
//   - proof is the path of sibling values committing i. They recreate the
//     unique accumulator peak that committed i to the MMR state from which the
//     proof was produced.
func IncludedRoot(hasher *nodehash.Hasher, i uint64, nodeHash nodehash.Digest, proof []nodehash.Digest) nodehash.Digest {

	root := nodeHash

	g := IndexHeight(i)

	for _, sibling := range proof {

		// If the index after i is higher, it is the left parent,
		// and i is the right sibling
		if IndexHeight(i+1) > g {

			// The parent of a right sibling is stored immediately after
			i = i + 1

			root = hasher.HashNode(sibling, root)
		} else {

			// The parent of a left sibling is stored immediately after
			// its right sibling.
			i = i + (2 << g)

			root = hasher.HashNode(root, sibling)
		}

		// Set g to the height of the next item in the path.
		g = g + 1
	}

	return root
}

// BagPeaks folds the peaks, tallest first, into a single root from the right:
//
//	HashBag(p0, HashBag(p1, ... HashBag(pn-2, pn-1)))
//
// A single peak is its own root. The empty mmr has the zero digest as its root.
func BagPeaks(hasher *nodehash.Hasher, peaks []nodehash.Digest) nodehash.Digest {
	if len(peaks) == 0 {
		return nodehash.Digest{}
	}
	acc := peaks[len(peaks)-1]
	for j := len(peaks) - 2; j >= 0; j-- {
		acc = hasher.HashBag(peaks[j], acc)
	}
	return acc
}
