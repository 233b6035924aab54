package checkpoint

// State is the signed commitment to an accumulator state.
type State struct {
	// Engine is "mmr" or "smt"
	Engine string `cbor:"1,keyasint"`
	// Size is the mmr leaf count, or the smt version, the root was taken at.
	// Any later state of the same accumulator can reproduce this root.
	Size uint64 `cbor:"2,keyasint"`
	// Root is detached from published checkpoints and must be recomputed by
	// the verifier.
	Root []byte `cbor:"3,keyasint"`
	// Timestamp is the unix time (milliseconds) read at the time the root was
	// signed. Including it allows for the same root to be re-signed.
	Timestamp int64 `cbor:"4,keyasint"`
	// RunID identifies the benchmark run that produced the state.
	RunID string `cbor:"5,keyasint"`
	// HashAlgorithm names the node hash, so the root can be recomputed.
	HashAlgorithm string `cbor:"6,keyasint"`
	// Depth is the smt address width in bits, zero for the mmr.
	Depth uint16 `cbor:"7,keyasint,omitempty"`
}
