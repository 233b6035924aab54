package mmr

import (
	"math"
	"math/bits"
)

// Nodes are numbered by mmr index, the zero based post order position, which
// is also the order they are appended in. A one based position, pos = i + 1,
// makes the binary encoding line up: the left most node at every height has a
// position that is all ones.
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

// IndexHeight returns the height of the node at mmr index i. Leaves have
// height 0.
func IndexHeight(i uint64) uint64 {
	return PosHeight(i + 1)
}

// PosHeight returns the height of the node at one based position pos. Any
// position can be shifted left, by the size of the largest perfect tree
// before it, onto a node of the same height. Once the position is all ones it
// is the left most node of its height and the bit count gives the height.
func PosHeight(pos uint64) uint64 {
	for !allOnes(pos) {
		pos = jumpLeftPerfect(pos)
	}
	return bitLength64(pos) - 1
}

func jumpLeftPerfect(pos uint64) uint64 {
	msb := uint64(1) << (bitLength64(pos) - 1)
	return pos - (msb - 1)
}

func allOnes(num uint64) bool {
	return (1<<bits.OnesCount64(num) - 1) == num
}

func bitLength64(num uint64) uint64 { return uint64(bits.Len64(num)) }

// MMRIndex returns the mmr index of the leaf with the given leaf index. Each
// set bit of the leaf index contributes the full perfect tree to its left.
func MMRIndex(leafIndex uint64) uint64 {
	sum := uint64(0)
	for leafIndex > 0 {
		h := bits.Len64(leafIndex)
		sum += (1 << h) - 1
		leafIndex -= uint64(1) << (h - 1)
	}
	return sum
}

// MMRSize returns the node count of the mmr holding leafCount leaves. Each
// leaf contributes itself and one interior node, less one per peak.
func MMRSize(leafCount uint64) uint64 {
	return 2*leafCount - uint64(bits.OnesCount64(leafCount))
}

// LeafCount returns the number of leaves in an mmr of mmrSize nodes. For
// sizes that are not complete mmrs it counts the leaves of the largest
// complete mmr that fits.
func LeafCount(mmrSize uint64) uint64 {
	return PeaksBitmap(mmrSize)
}

// PeaksBitmap returns a value whose set bits are the heights of the peaks of
// the mmr with mmrSize nodes. It is numerically the leaf count.
func PeaksBitmap(mmrSize uint64) uint64 {
	if mmrSize == 0 {
		return 0
	}
	pos := mmrSize
	peakSize := uint64(math.MaxUint64) >> bits.LeadingZeros64(mmrSize)
	peakMap := uint64(0)
	for peakSize > 0 {
		peakMap <<= 1
		if pos >= peakSize {
			pos -= peakSize
			peakMap |= 1
		}
		peakSize >>= 1
	}
	return peakMap
}

// FirstMMRSize returns the size of the first complete mmr containing mmr
// index i. Adding a leaf may back fill interior nodes, so a node is only part
// of a complete mmr once the run of parents that follows it is written.
func FirstMMRSize(i uint64) uint64 {
	h0 := IndexHeight(i)
	h1 := IndexHeight(i + 1)
	for h0 < h1 {
		i++
		h0 = h1
		h1 = IndexHeight(i + 1)
	}
	return i + 1
}

// LeafIndex returns the index of the last leaf added by the time mmr index i
// was written. For a leaf this is its own leaf index.
func LeafIndex(i uint64) uint64 {
	return LeafCount(FirstMMRSize(i)) - 1
}
