package smt

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/forestrie/go-merklebench/nodehash"
)

// Proof is the sibling path for a key. Siblings are ordered leaf to root, so
// Siblings[0] is the sibling of the leaf and the proof depth is
// len(Siblings). The same proof shows presence of a payload or absence of
// the key.
type Proof struct {
	// Version is the tree version the proof was generated against
	Version  uint64
	Siblings []nodehash.Digest
}

// Depth is the tree depth the proof was generated for.
func (p *Proof) Depth() int { return len(p.Siblings) }

// Verify reports whether payload is the value of key in the tree committed by
// root. Malformed proofs verify false.
func Verify(hasher *nodehash.Hasher, root nodehash.Digest, key, payload []byte, proof *Proof) bool {
	if proof == nil {
		return false
	}
	depth := len(proof.Siblings)
	if depth < 1 || depth > MaxDepth {
		return false
	}
	addr := hasher.HashKey(key)
	node := hasher.HashLeaf(payload)
	for j, sibling := range proof.Siblings {
		d := depth - j
		if bitAt(addr, d-1) == 0 {
			node = hasher.HashNode(node, sibling)
		} else {
			node = hasher.HashNode(sibling, node)
		}
	}
	return node == root
}

// VerifyAbsent reports whether key holds the default, empty, leaf in the tree
// committed by root.
func VerifyAbsent(hasher *nodehash.Hasher, root nodehash.Digest, key []byte, proof *Proof) bool {
	return Verify(hasher, root, key, nil, proof)
}

// compactProof is the wire form. Bit j of Bitmap, most significant first, is
// set when Siblings[j] differs from the default for its depth, and only those
// siblings are carried.
type compactProof struct {
	Version  uint64            `cbor:"1,keyasint"`
	Depth    uint16            `cbor:"2,keyasint"`
	Bitmap   []byte            `cbor:"3,keyasint"`
	Siblings []nodehash.Digest `cbor:"4,keyasint,omitempty"`
}

var (
	proofEncMode cbor.EncMode
	proofDecMode cbor.DecMode
)

func init() {
	var err error
	if proofEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if proofDecMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Encode serializes the proof, eliding siblings equal to the default hashes.
// Sparse trees make most siblings defaults, so this typically shrinks a depth
// 256 proof to a few hundred bytes.
func (p *Proof) Encode(hasher *nodehash.Hasher) ([]byte, error) {
	depth := len(p.Siblings)
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrProofDepth, depth)
	}
	z := DefaultHashes(hasher, depth)
	c := compactProof{
		Version: p.Version,
		Depth:   uint16(depth),
		Bitmap:  make([]byte, (depth+7)/8),
	}
	for j, s := range p.Siblings {
		if s == z[depth-j] {
			continue
		}
		c.Bitmap[j/8] |= 1 << (7 - uint(j%8))
		c.Siblings = append(c.Siblings, s)
	}
	return proofEncMode.Marshal(c)
}

// DecodeProof reverses Encode.
func DecodeProof(hasher *nodehash.Hasher, data []byte) (*Proof, error) {
	var c compactProof
	if err := proofDecMode.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofEncoding, err)
	}
	depth := int(c.Depth)
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrProofDepth, depth)
	}
	if len(c.Bitmap) != (depth+7)/8 {
		return nil, fmt.Errorf("%w: bitmap is %d bytes for depth %d", ErrProofEncoding, len(c.Bitmap), depth)
	}

	z := DefaultHashes(hasher, depth)
	p := &Proof{Version: c.Version, Siblings: make([]nodehash.Digest, depth)}
	next := 0
	for j := 0; j < depth; j++ {
		if c.Bitmap[j/8]&(1<<(7-uint(j%8))) == 0 {
			p.Siblings[j] = z[depth-j]
			continue
		}
		if next >= len(c.Siblings) {
			return nil, fmt.Errorf("%w: bitmap names more siblings than present", ErrProofEncoding)
		}
		p.Siblings[j] = c.Siblings[next]
		next++
	}
	if next != len(c.Siblings) {
		return nil, fmt.Errorf("%w: %d unused siblings", ErrProofEncoding, len(c.Siblings)-next)
	}
	return p, nil
}
