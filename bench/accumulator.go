package bench

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-merklebench/mmr"
	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/smt"
)

var (
	ErrVerifyFailed      = errors.New("bench: a freshly generated proof did not verify")
	ErrNotInserted       = errors.New("bench: index was not inserted")
	ErrInvalidCommitment = errors.New("bench: commitment is not the current root")
	ErrBadMeta           = errors.New("bench: malformed metadata")
	ErrUnknownEngine     = errors.New("bench: unknown engine")
	ErrIndexRange        = errors.New("bench: index out of range")
	ErrProofKind         = errors.New("bench: proof kind does not match the engine")
)

// Kind discriminates the engines, and the proofs they produce.
type Kind string

const (
	KindMMR Kind = "mmr"
	KindSMT Kind = "smt"
)

// ParseKind maps a mode argument to a Kind.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindMMR, KindSMT:
		return Kind(name), nil
	}
	return "", fmt.Errorf("%w: %q, expected mmr or smt", ErrUnknownEngine, name)
}

// Proof carries exactly one engine proof, selected by Kind.
type Proof struct {
	Kind Kind
	MMR  *mmr.Proof
	SMT  *smt.Proof
}

// Encode serializes the wrapped proof in its engine's wire form.
func (p Proof) Encode(hasher *nodehash.Hasher) ([]byte, error) {
	switch {
	case p.Kind == KindMMR && p.MMR != nil:
		return p.MMR.MarshalBinary()
	case p.Kind == KindSMT && p.SMT != nil:
		return p.SMT.Encode(hasher)
	}
	return nil, fmt.Errorf("%w: %q", ErrProofKind, p.Kind)
}

// BatchProof carries exactly one engine batch proof, selected by Kind.
type BatchProof struct {
	Kind Kind
	MMR  *mmr.BatchProof
	SMT  *smt.BatchProof
}

func (p BatchProof) Encode() ([]byte, error) {
	switch {
	case p.Kind == KindMMR && p.MMR != nil:
		return p.MMR.MarshalBinary()
	case p.Kind == KindSMT && p.SMT != nil:
		return p.SMT.Encode()
	}
	return nil, fmt.Errorf("%w: %q", ErrProofKind, p.Kind)
}

// Accumulator is the capability the harness times. Implementations are not
// safe for concurrent use.
type Accumulator interface {
	Kind() Kind
	// Insert appends (mmr) or updates the key for (smt) index.
	Insert(index uint64, payload []byte) error
	Root() nodehash.Digest
	// Size is the mmr leaf count or the smt version the current root was
	// taken at.
	Size() uint64
	Prove(index uint64) (Proof, error)
	Verify(root nodehash.Digest, index uint64, payload []byte, proof Proof) bool
	// ProveBatch proves several indices in one proof. root must be the
	// current root, otherwise ErrInvalidCommitment.
	ProveBatch(root nodehash.Digest, indices []uint64) (BatchProof, error)
	VerifyBatch(root nodehash.Digest, indices []uint64, payloads [][]byte, proof BatchProof) bool
	Hasher() *nodehash.Hasher
}
