package bench

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/forestrie/go-merklebench/mmr"
	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/smt"
)

// MetaMMRBase names the store metadata entry holding the benchmark index of
// the first mmr leaf.
const MetaMMRBase = "bench.mmr.base"

// MetaStore holds harness metadata next to the engine nodes.
// *nodestore.Store satisfies it.
type MetaStore interface {
	GetMeta(name string) ([]byte, bool, error)
	PutMeta(name string, value []byte) error
}

// MMR adapts an mmr.Accumulator. Every insert appends a leaf, whatever its
// index. The index of the first leaf ever appended is kept in the store as
// the base, and index base+k names leaf k. Inserts made since the adapter was
// created name their own leaves, so a range that does not continue the store
// still proves.
type MMR struct {
	acc  *mmr.Accumulator
	meta MetaStore

	base    uint64
	hasBase bool

	// the current run of consecutive indices started at runIndex, appended
	// from leaf runLeaf on
	runIndex uint64
	runLeaf  uint64
	inRun    bool
}

// NewMMR adapts acc, reading the base index from meta.
func NewMMR(acc *mmr.Accumulator, meta MetaStore) (*MMR, error) {
	m := &MMR{acc: acc, meta: meta}
	raw, ok, err := meta.GetMeta(MetaMMRBase)
	if err != nil {
		return nil, err
	}
	if ok {
		if len(raw) != 8 {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadMeta, MetaMMRBase, len(raw))
		}
		m.base, m.hasBase = binary.BigEndian.Uint64(raw), true
	}
	return m, nil
}

func (m *MMR) Kind() Kind { return KindMMR }
func (m *MMR) Root() nodehash.Digest { return m.acc.Root() }
func (m *MMR) Size() uint64 { return m.acc.LeafCount() }
func (m *MMR) Hasher() *nodehash.Hasher { return m.acc.Hasher() }
func (m *MMR) Accumulator() *mmr.Accumulator { return m.acc }

// Base returns the benchmark index of leaf 0, once a leaf exists.
func (m *MMR) Base() (uint64, bool) { return m.base, m.hasBase }

// Insert appends payload as the next leaf.
func (m *MMR) Insert(index uint64, payload []byte) error {
	n := m.acc.LeafCount()
	if !m.hasBase && n == 0 {
		if err := m.meta.PutMeta(MetaMMRBase, binary.BigEndian.AppendUint64(nil, index)); err != nil {
			return err
		}
		m.base, m.hasBase = index, true
	}
	if !m.inRun || index != m.runIndex+(n-m.runLeaf) {
		m.runIndex, m.runLeaf, m.inRun = index, n, true
	}
	_, _, err := m.acc.Append(payload)
	return err
}

// LeafIndex maps a benchmark index to the leaf it was appended as.
func (m *MMR) LeafIndex(index uint64) (uint64, error) {
	n := m.acc.LeafCount()
	if m.inRun && index >= m.runIndex && index-m.runIndex < n-m.runLeaf {
		return m.runLeaf + index - m.runIndex, nil
	}
	if m.hasBase && index >= m.base && index-m.base < n {
		return index - m.base, nil
	}
	return 0, fmt.Errorf("%w: index %d", ErrNotInserted, index)
}

func (m *MMR) leafIndices(indices []uint64) ([]uint64, error) {
	out := make([]uint64, len(indices))
	for j, index := range indices {
		li, err := m.LeafIndex(index)
		if err != nil {
			return nil, err
		}
		out[j] = li
	}
	return out, nil
}

func (m *MMR) Prove(index uint64) (Proof, error) {
	li, err := m.LeafIndex(index)
	if err != nil {
		return Proof{}, err
	}
	p, err := m.acc.GenerateProof(li)
	if err != nil {
		return Proof{}, err
	}
	return Proof{Kind: KindMMR, MMR: p}, nil
}

func (m *MMR) Verify(root nodehash.Digest, index uint64, payload []byte, proof Proof) bool {
	if proof.Kind != KindMMR {
		return false
	}
	li, err := m.LeafIndex(index)
	if err != nil {
		return false
	}
	return m.acc.VerifyProof(root, payload, li, proof.MMR)
}

func (m *MMR) ProveBatch(root nodehash.Digest, indices []uint64) (BatchProof, error) {
	if root != m.acc.Root() {
		return BatchProof{}, fmt.Errorf("%w: %s", ErrInvalidCommitment, root)
	}
	lis, err := m.leafIndices(indices)
	if err != nil {
		return BatchProof{}, err
	}
	p, err := m.acc.ProveAll(lis)
	if err != nil {
		return BatchProof{}, err
	}
	return BatchProof{Kind: KindMMR, MMR: p}, nil
}

func (m *MMR) VerifyBatch(root nodehash.Digest, indices []uint64, payloads [][]byte, proof BatchProof) bool {
	if proof.Kind != KindMMR || proof.MMR == nil {
		return false
	}
	lis, err := m.leafIndices(indices)
	if err != nil || !slices.Equal(lis, proof.MMR.LeafIndices) {
		return false
	}
	return m.acc.VerifyAll(root, payloads, proof.MMR)
}

// SMT adapts an smt.Tree. The key for an index is smt.IndexKey(index).
type SMT struct {
	tree *smt.Tree
}

func NewSMT(tree *smt.Tree) *SMT { return &SMT{tree: tree} }

func (s *SMT) Kind() Kind { return KindSMT }
func (s *SMT) Root() nodehash.Digest { return s.tree.Root() }
func (s *SMT) Size() uint64 { return s.tree.Version() }
func (s *SMT) Hasher() *nodehash.Hasher { return s.tree.Hasher() }
func (s *SMT) Tree() *smt.Tree { return s.tree }

func (s *SMT) Insert(index uint64, payload []byte) error {
	_, err := s.tree.Update(smt.IndexKey(index), payload)
	return err
}

func (s *SMT) Prove(index uint64) (Proof, error) {
	p, err := s.tree.GenerateProof(smt.IndexKey(index))
	if err != nil {
		return Proof{}, err
	}
	return Proof{Kind: KindSMT, SMT: p}, nil
}

func (s *SMT) Verify(root nodehash.Digest, index uint64, payload []byte, proof Proof) bool {
	if proof.Kind != KindSMT {
		return false
	}
	return s.tree.Verify(root, smt.IndexKey(index), payload, proof.SMT)
}

func (s *SMT) ProveBatch(root nodehash.Digest, indices []uint64) (BatchProof, error) {
	if root != s.tree.Root() {
		return BatchProof{}, fmt.Errorf("%w: %s", ErrInvalidCommitment, root)
	}
	p, err := s.tree.ProveAll(indexKeys(indices))
	if err != nil {
		return BatchProof{}, err
	}
	return BatchProof{Kind: KindSMT, SMT: p}, nil
}

func (s *SMT) VerifyBatch(root nodehash.Digest, indices []uint64, payloads [][]byte, proof BatchProof) bool {
	if proof.Kind != KindSMT {
		return false
	}
	return s.tree.VerifyAll(root, indexKeys(indices), payloads, proof.SMT)
}

func indexKeys(indices []uint64) [][]byte {
	keys := make([][]byte, len(indices))
	for j, index := range indices {
		keys[j] = smt.IndexKey(index)
	}
	return keys
}
