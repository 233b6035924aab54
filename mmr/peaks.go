package mmr

import (
	"math/bits"
)

// PosPeaks returns the one based positions of the peaks of an mmr of mmrSize
// nodes, tallest (left most) first. Sizes that leave a pair of siblings
// without their parent are not valid mmr sizes and give nil.
//
//	3            15
//	           /    \
//	2       7          14
//	      /   \       /   \
//	1    3     6    10     13      18
//	    / \  /  \   / \   /  \    /  \
//	0  1   2 4   5 8   9 11   12 16   17
//
// For mmrSize 18, above, the peaks are [15, 18].
func PosPeaks(mmrSize uint64) []uint64 {
	if mmrSize == 0 {
		return nil
	}
	if PosHeight(mmrSize+1) > PosHeight(mmrSize) {
		return nil
	}

	var peaks []uint64
	var pos uint64
	for rest := mmrSize; rest != 0; {
		// each step strips the largest perfect tree from what remains
		span := TopPeak(rest)
		pos += span
		peaks = append(peaks, pos)
		rest -= span
	}
	return peaks
}

// PeakIndex returns the position in the tallest first peak list of the peak
// reached by an inclusion path of length d in the mmr with leafCount leaves.
// When proving an interior node add its IndexHeight to d.
func PeakIndex(leafCount uint64, d int) int {
	// set bits of leafCount are peak heights. Peaks at height d or lower are
	// on the right, so count them and subtract from the total.
	lower := bits.OnesCount64(leafCount & (1<<(d+1) - 1))
	return bits.OnesCount64(leafCount) - lower
}

// LeafPeak locates the peak committing leafIndex in the mmr with leafCount
// leaves. It returns the peak's index in the tallest first peak list and its
// height, which is also the length of the leaf's inclusion path.
func LeafPeak(leafCount uint64, leafIndex uint64) (int, uint64, bool) {
	if leafIndex >= leafCount {
		return 0, 0, false
	}
	first := uint64(0)
	ipeak := 0
	for h := 63; h >= 0; h-- {
		size := uint64(1) << h
		if leafCount&size == 0 {
			continue
		}
		if leafIndex < first+size {
			return ipeak, uint64(h), true
		}
		first += size
		ipeak++
	}
	return 0, 0, false
}

// TopPeak returns the node count of the largest perfect tree that fits in pos
// nodes. That is also the one based position of its root:
//
//	TopPeak(1) = TopPeak(2) = 1
//	TopPeak(3) ... TopPeak(6) = 3
//	TopPeak(7) = 7
func TopPeak(pos uint64) uint64 {
	return 1<<(bitLength64(pos+1)-1) - 1
}
