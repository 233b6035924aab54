package mmr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-merklebench/nodehash"
)

// MetaLeafCount names the store metadata entry holding the leaf count.
const MetaLeafCount = "mmr.leaves"

var (
	ErrIndexOutOfRange = errors.New("mmr: index out of range")
	ErrMissingNode     = errors.New("mmr: node missing from store")
	ErrBadMeta         = errors.New("mmr: malformed leaf count metadata")
)

// NodeStore is the persistence the accumulator needs. *nodestore.Store
// satisfies it.
type NodeStore interface {
	Put(id []byte, digest nodehash.Digest) error
	Get(id []byte) (nodehash.Digest, bool, error)
	PutMeta(name string, value []byte) error
	GetMeta(name string) ([]byte, bool, error)
}

// Accumulator is an append only merkle mountain range. Nodes are written to
// the store in post order, which is also mmr index order. The current peaks
// are kept in memory so appends and roots never read the store.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	store     NodeStore
	hasher    *nodehash.Hasher
	log       logger.Logger
	leafCount uint64
	size      uint64
	// peaks are ordered tallest (left most) first
	peaks []nodehash.Digest
}

type Option func(*Accumulator)

func WithLogger(log logger.Logger) Option {
	return func(a *Accumulator) {
		a.log = log
	}
}

// New opens the accumulator persisted in store, or starts an empty one.
func New(store NodeStore, hasher *nodehash.Hasher, opts ...Option) (*Accumulator, error) {
	a := &Accumulator{
		store:  store,
		hasher: hasher,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Sugar.WithServiceName("mmr")
	}

	raw, ok, err := store.GetMeta(MetaLeafCount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return a, nil
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadMeta, len(raw))
	}
	a.leafCount = binary.BigEndian.Uint64(raw)
	a.size = MMRSize(a.leafCount)
	if a.peaks, err = a.readPeaks(a.leafCount); err != nil {
		return nil, err
	}
	a.log.Debugf("reopened mmr: leaves %d, size %d, peaks %d", a.leafCount, a.size, len(a.peaks))
	return a, nil
}

// LeafCount returns n, the number of appended leaves.
func (a *Accumulator) LeafCount() uint64 { return a.leafCount }

// Size returns the number of nodes, leaves and interior, in the mmr.
func (a *Accumulator) Size() uint64 { return a.size }

// Peaks returns a copy of the current peaks, tallest first.
func (a *Accumulator) Peaks() []nodehash.Digest {
	return append([]nodehash.Digest(nil), a.peaks...)
}

func (a *Accumulator) Hasher() *nodehash.Hasher { return a.hasher }

// Append hashes payload as a leaf and adds it. It returns the new leaf count
// and the right most peak, which commits the new leaf.
func (a *Accumulator) Append(payload []byte) (uint64, nodehash.Digest, error) {
	return a.AppendHashed(a.hasher.HashLeaf(payload))
}

// AppendHashed adds a pre hashed leaf and back fills any interior nodes
// 'above and to the left'.
//
// Every node is written before the in memory state advances, so an append
// that fails part way can be retried. Writes it already made are idempotent.
func (a *Accumulator) AppendHashed(leaf nodehash.Digest) (uint64, nodehash.Digest, error) {

	i := a.size
	if err := a.put(i, leaf); err != nil {
		return 0, nodehash.Digest{}, err
	}
	i++

	peaks := make([]nodehash.Digest, len(a.peaks), len(a.peaks)+1)
	copy(peaks, a.peaks)
	peaks = append(peaks, leaf)

	// If the node after the one just added would be higher in the tree, the
	// two right most peaks are siblings and their parent is the next node.
	//
	//  0 1 <- we add '1'
	//
	//   2  <- so we get to append '2' as well, because the next index is higher
	//  / \
	// 0   1
	//
	// Each merge may expose another equal height pair, so keep going until
	// the next index is not a parent.
	height := uint64(0)
	for IndexHeight(i) > height {
		last := len(peaks) - 1
		node := a.hasher.HashNode(peaks[last-1], peaks[last])
		if err := a.put(i, node); err != nil {
			return 0, nodehash.Digest{}, err
		}
		peaks = append(peaks[:last-1], node)
		i++
		height++
	}

	if err := a.putLeafCount(a.leafCount + 1); err != nil {
		return 0, nodehash.Digest{}, err
	}
	a.size = i
	a.leafCount++
	a.peaks = peaks
	return a.leafCount, peaks[len(peaks)-1], nil
}

// Root bags the current peaks.
func (a *Accumulator) Root() nodehash.Digest {
	return BagPeaks(a.hasher, a.peaks)
}

// RootAt returns the root the mmr had when it held leafCount leaves.
func (a *Accumulator) RootAt(leafCount uint64) (nodehash.Digest, error) {
	peaks, err := a.peaksAt(leafCount)
	if err != nil {
		return nodehash.Digest{}, err
	}
	return BagPeaks(a.hasher, peaks), nil
}

// PeaksAt returns the peaks, tallest first, the mmr had at leafCount leaves.
func (a *Accumulator) PeaksAt(leafCount uint64) ([]nodehash.Digest, error) {
	return a.peaksAt(leafCount)
}

// Leaf returns the stored leaf hash for leafIndex.
func (a *Accumulator) Leaf(leafIndex uint64) (nodehash.Digest, error) {
	if leafIndex >= a.leafCount {
		return nodehash.Digest{}, fmt.Errorf("%w: leaf %d, leaf count %d", ErrIndexOutOfRange, leafIndex, a.leafCount)
	}
	return nodeGetter{a.store}.Get(MMRIndex(leafIndex))
}

// GenerateProof proves leafIndex against the current root.
func (a *Accumulator) GenerateProof(leafIndex uint64) (*Proof, error) {
	return a.ProveAt(leafIndex, a.leafCount)
}

// ProveAt proves leafIndex against the root of the mmr as it was at leafCount
// leaves.
func (a *Accumulator) ProveAt(leafIndex uint64, leafCount uint64) (*Proof, error) {
	if leafCount > a.leafCount {
		return nil, fmt.Errorf("%w: leaf count %d, have %d", ErrIndexOutOfRange, leafCount, a.leafCount)
	}
	ipeak, _, ok := LeafPeak(leafCount, leafIndex)
	if !ok {
		return nil, fmt.Errorf("%w: leaf %d, leaf count %d", ErrIndexOutOfRange, leafIndex, leafCount)
	}

	path, err := InclusionProof(nodeGetter{a.store}, MMRSize(leafCount)-1, MMRIndex(leafIndex))
	if err != nil {
		return nil, err
	}
	peaks, err := a.peaksAt(leafCount)
	if err != nil {
		return nil, err
	}
	others := make([]nodehash.Digest, 0, len(peaks)-1)
	others = append(others, peaks[:ipeak]...)
	others = append(others, peaks[ipeak+1:]...)

	return &Proof{
		LeafCount: leafCount,
		LeafIndex: leafIndex,
		Path:      path,
		Peaks:     others,
	}, nil
}

// VerifyProof is VerifyProof using the accumulator's hasher.
func (a *Accumulator) VerifyProof(root nodehash.Digest, payload []byte, leafIndex uint64, proof *Proof) bool {
	return VerifyProof(a.hasher, root, payload, leafIndex, proof)
}

// VerifyProof reports whether payload is the leaf at leafIndex in the mmr
// committed by root. Malformed proofs verify false.
func VerifyProof(hasher *nodehash.Hasher, root nodehash.Digest, payload []byte, leafIndex uint64, proof *Proof) bool {
	if proof == nil || proof.LeafIndex != leafIndex {
		return false
	}
	ipeak, height, ok := LeafPeak(proof.LeafCount, leafIndex)
	if !ok || uint64(len(proof.Path)) != height {
		return false
	}
	if len(proof.Peaks)+1 != bits.OnesCount64(proof.LeafCount) {
		return false
	}

	peak := IncludedRoot(hasher, MMRIndex(leafIndex), hasher.HashLeaf(payload), proof.Path)

	peaks := make([]nodehash.Digest, 0, len(proof.Peaks)+1)
	peaks = append(peaks, proof.Peaks[:ipeak]...)
	peaks = append(peaks, peak)
	peaks = append(peaks, proof.Peaks[ipeak:]...)
	return BagPeaks(hasher, peaks) == root
}

func (a *Accumulator) peaksAt(leafCount uint64) ([]nodehash.Digest, error) {
	if leafCount > a.leafCount {
		return nil, fmt.Errorf("%w: leaf count %d, have %d", ErrIndexOutOfRange, leafCount, a.leafCount)
	}
	if leafCount == a.leafCount {
		return a.Peaks(), nil
	}
	return a.readPeaks(leafCount)
}

func (a *Accumulator) readPeaks(leafCount uint64) ([]nodehash.Digest, error) {
	g := nodeGetter{a.store}
	var peaks []nodehash.Digest
	for _, pos := range PosPeaks(MMRSize(leafCount)) {
		d, err := g.Get(pos - 1)
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, d)
	}
	return peaks, nil
}

func (a *Accumulator) put(i uint64, d nodehash.Digest) error {
	return a.store.Put(NodeID(i), d)
}

func (a *Accumulator) putLeafCount(n uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return a.store.PutMeta(MetaLeafCount, b[:])
}

// nodeGetter adapts a NodeStore to mmr index reads.
type nodeGetter struct {
	store NodeStore
}

func (g nodeGetter) Get(i uint64) (nodehash.Digest, error) {
	d, ok, err := g.store.Get(NodeID(i))
	if err != nil {
		return nodehash.Digest{}, err
	}
	if !ok {
		return nodehash.Digest{}, fmt.Errorf("%w: index %d", ErrMissingNode, i)
	}
	return d, nil
}
