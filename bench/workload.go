package bench

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20"
)

const (
	// OutpointSize is a 32 byte transaction hash followed by a little endian
	// u32 output index.
	OutpointSize = 36
	txHashSize   = 32

	keyStreamBlock = 64
	hashesPerBlock = keyStreamBlock / txHashSize
)

// Workload derives the payload for any index from a seed. The transaction
// hash for index i is bytes [32i, 32i+32) of the chacha20 key stream for the
// seed with an all zero nonce, so payloads do not depend on the start index.
type Workload struct {
	seed [chacha20.KeySize]byte
}

// NewWorkload returns the workload for seed. Seed 0 gives the all zero key.
func NewWorkload(seed uint64) Workload {
	var w Workload
	binary.BigEndian.PutUint64(w.seed[chacha20.KeySize-8:], seed)
	return w
}

// MaxIndex is the largest index the u32 output index of an outpoint holds.
const MaxIndex uint64 = math.MaxUint32

// Payload returns the outpoint for index.
func (w Workload) Payload(index uint64) ([]byte, error) {
	if index > MaxIndex {
		return nil, fmt.Errorf("%w: index %d exceeds %d", ErrIndexRange, index, MaxIndex)
	}
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(w.seed[:], nonce[:])
	if err != nil {
		return nil, err
	}
	c.SetCounter(uint32(index / hashesPerBlock))

	var block [keyStreamBlock]byte
	c.XORKeyStream(block[:], block[:])

	out := make([]byte, OutpointSize)
	off := (index % hashesPerBlock) * txHashSize
	copy(out, block[off:off+txHashSize])
	binary.LittleEndian.PutUint32(out[txHashSize:], uint32(index))
	return out, nil
}
