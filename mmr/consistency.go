package mmr

import (
	"fmt"
	"math/bits"

	"github.com/forestrie/go-merklebench/nodehash"
)

// ConsistencyProof shows that the mmr with LeafCountA leaves is a prefix of
// the mmr with LeafCountB leaves, so B was produced from A by appends alone.
//
// It carries an inclusion path in B for each peak of A. Several peaks of A
// usually climb to the same peak of B, and those peaks of B form a prefix of
// B's peak list. RightPeaks completes the list with the peaks of B built
// entirely from leaves appended after A.
type ConsistencyProof struct {
	LeafCountA uint64              `cbor:"1,keyasint"`
	LeafCountB uint64              `cbor:"2,keyasint"`
	Paths      [][]nodehash.Digest `cbor:"3,keyasint"`
	RightPeaks []nodehash.Digest   `cbor:"4,keyasint"`
}

// ProveConsistency proves that the mmr as it was at leafCountA leaves is
// contained in the mmr as it was at leafCountB leaves.
func (a *Accumulator) ProveConsistency(leafCountA, leafCountB uint64) (*ConsistencyProof, error) {
	if leafCountA > leafCountB || leafCountB > a.leafCount {
		return nil, fmt.Errorf("%w: consistency of %d with %d, have %d",
			ErrIndexOutOfRange, leafCountA, leafCountB, a.leafCount)
	}

	g := nodeGetter{a.store}
	lastB := MMRSize(leafCountB) - 1
	proof := &ConsistencyProof{LeafCountA: leafCountA, LeafCountB: leafCountB}

	covered := 0
	peaksB := PosPeaks(lastB + 1)
	for _, pos := range PosPeaks(MMRSize(leafCountA)) {
		path, err := InclusionProof(g, lastB, pos-1)
		if err != nil {
			return nil, err
		}
		proof.Paths = append(proof.Paths, path)
		covered = containingPeak(peaksB, pos-1) + 1
	}

	peaks, err := a.peaksAt(leafCountB)
	if err != nil {
		return nil, err
	}
	proof.RightPeaks = append(proof.RightPeaks, peaks[covered:]...)
	return proof, nil
}

// VerifyConsistency reports whether proof shows the mmr committed by rootA,
// whose peaks are peaksA (tallest first), is a prefix of the mmr committed by
// rootB. Malformed proofs verify false.
func VerifyConsistency(
	hasher *nodehash.Hasher, proof *ConsistencyProof,
	peaksA []nodehash.Digest, rootA, rootB nodehash.Digest) bool {

	if proof == nil || proof.LeafCountA > proof.LeafCountB {
		return false
	}
	if len(peaksA) != bits.OnesCount64(proof.LeafCountA) || len(proof.Paths) != len(peaksA) {
		return false
	}
	if BagPeaks(hasher, peaksA) != rootA {
		return false
	}

	posA := PosPeaks(MMRSize(proof.LeafCountA))
	posB := PosPeaks(MMRSize(proof.LeafCountB))

	// Climb each peak of A to the peak of B above it. Peaks of A sharing a
	// peak of B must agree on it.
	var recovered []nodehash.Digest
	last := -1
	for j, peak := range peaksA {
		i := posA[j] - 1
		ipeakB := containingPeak(posB, i)
		if ipeakB < 0 {
			return false
		}
		if uint64(len(proof.Paths[j])) != IndexHeight(posB[ipeakB]-1)-IndexHeight(i) {
			return false
		}
		root := IncludedRoot(hasher, i, peak, proof.Paths[j])
		if ipeakB == last {
			if recovered[len(recovered)-1] != root {
				return false
			}
			continue
		}
		if ipeakB != last+1 {
			return false
		}
		recovered = append(recovered, root)
		last = ipeakB
	}

	if len(recovered)+len(proof.RightPeaks) != len(posB) {
		return false
	}
	recovered = append(recovered, proof.RightPeaks...)
	return BagPeaks(hasher, recovered) == rootB
}

// containingPeak returns the position in peaks (one based peak positions,
// tallest first) of the peak whose mountain holds mmr index i, or -1.
func containingPeak(peaks []uint64, i uint64) int {
	for j, pos := range peaks {
		if i <= pos-1 {
			return j
		}
	}
	return -1
}
