package mmr

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/forestrie/go-merklebench/nodehash"
)

// Proof is an inclusion proof for a single leaf against a bagged root.
type Proof struct {
	// LeafCount identifies the mmr state the proof was made for
	LeafCount uint64 `cbor:"1,keyasint"`
	LeafIndex uint64 `cbor:"2,keyasint"`
	// Path is the sibling path from the leaf up to, excluding, its peak
	Path []nodehash.Digest `cbor:"3,keyasint"`
	// Peaks are the other peaks, tallest first, with the proven peak removed
	Peaks []nodehash.Digest `cbor:"4,keyasint"`
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

// Len returns the number of digests carried by the proof.
func (p *Proof) Len() int { return len(p.Path) + len(p.Peaks) }

func (p *Proof) MarshalBinary() ([]byte, error) {
	return proofEncMode.Marshal(p)
}

func (p *Proof) UnmarshalBinary(data []byte) error {
	return proofDecMode.Unmarshal(data, p)
}
