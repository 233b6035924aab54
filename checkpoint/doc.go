// Package checkpoint produces and verifies signed statements of an
// accumulator's size and root.
//
// A checkpoint is a COSE Sign1 message whose payload is the deterministic CBOR
// encoding of State. The signer's public key travels in the protected header
// as a CWT confirmation claim. The root is detached after signing, so a
// verifier must recompute it from the accumulator at State.Size before the
// signature will verify. A checkpoint therefore only verifies against data
// that really has that root.
package checkpoint
