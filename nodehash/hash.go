package nodehash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const Size = 32

const (
	TagLeaf byte = 0x00
	TagNode byte = 0x01
	TagBag  byte = 0x02
	TagKey  byte = 0x03
)

type Algorithm string

const (
	Blake2b256 Algorithm = "blake2b"
	SHA256     Algorithm = "sha256"
)

var (
	ErrUnknownAlgorithm = errors.New("nodehash: unknown hash algorithm")
	ErrDigestSize       = errors.New("nodehash: digest must be 32 bytes")
)

// Digest is a fixed width node value.
type Digest [Size]byte

// DigestFromBytes copies b into a Digest. b must be exactly Size bytes.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("%w: got %d", ErrDigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) IsZero() bool { return d == Digest{} }

// ParseAlgorithm accepts the algorithm names used on the command line.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(name)) {
	case "", Blake2b256, "blake2b256", "blake2b-256":
		return Blake2b256, nil
	case SHA256, "sha-256":
		return SHA256, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
}

// Hasher computes tagged digests. It owns a single hash.Hash which is reset
// before every use, so a Hasher is not safe for concurrent use. Use Clone to
// obtain an independent instance.
type Hasher struct {
	alg Algorithm
	h   hash.Hash
	buf [Size]byte
}

func New(alg Algorithm) (*Hasher, error) {
	h, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	return &Hasher{alg: alg, h: h}, nil
}

// Default returns a BLAKE2b-256 hasher.
func Default() *Hasher {
	h, err := New(Blake2b256)
	if err != nil {
		// blake2b.New256 only fails for oversized keys
		panic(err)
	}
	return h
}

func newHash(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case Blake2b256:
		return blake2b.New256(nil)
	case SHA256:
		return sha256.New(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
}

func (hr *Hasher) Algorithm() Algorithm { return hr.alg }

func (hr *Hasher) Clone() *Hasher {
	h, _ := newHash(hr.alg)
	return &Hasher{alg: hr.alg, h: h}
}

func (hr *Hasher) sum(tag byte, parts ...[]byte) Digest {
	hr.h.Reset()
	hr.buf[0] = tag
	_, _ = hr.h.Write(hr.buf[:1])
	for _, p := range parts {
		_, _ = hr.h.Write(p)
	}
	var out Digest
	hr.h.Sum(out[:0])
	return out
}

// HashLeaf commits to a leaf payload. A nil payload and an empty payload hash
// identically.
func (hr *Hasher) HashLeaf(payload []byte) Digest {
	return hr.sum(TagLeaf, payload)
}

// HashNode commits to an ordered pair of children.
func (hr *Hasher) HashNode(left, right Digest) Digest {
	return hr.sum(TagNode, left[:], right[:])
}

// HashBag combines a mountain peak with the bagged digest of the peaks to its
// right.
func (hr *Hasher) HashBag(left, right Digest) Digest {
	return hr.sum(TagBag, left[:], right[:])
}

// HashKey maps an application key to a tree address.
func (hr *Hasher) HashKey(key []byte) Digest {
	return hr.sum(TagKey, key)
}
