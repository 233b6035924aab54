package smt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-merklebench/nodehash"
)

const (
	MaxDepth     = 8 * nodehash.Size
	DefaultDepth = MaxDepth

	MetaVersion = "smt.version"
	MetaDepth   = "smt.depth"
)

var (
	ErrDepthRange        = errors.New("smt: depth must be between 1 and 256")
	ErrDepthMismatch     = errors.New("smt: store was created with a different depth")
	ErrVersionOutOfRange = errors.New("smt: version out of range")
	ErrBadMeta           = errors.New("smt: malformed metadata")
	ErrProofDepth        = errors.New("smt: proof depth out of range")
	ErrProofEncoding     = errors.New("smt: malformed proof encoding")
)

// NodeStore is the persistence the tree needs. *nodestore.Store satisfies it.
type NodeStore interface {
	Put(id []byte, digest nodehash.Digest) error
	GetFloor(prefix, id []byte) ([]byte, nodehash.Digest, bool, error)
	PutMeta(name string, value []byte) error
	GetMeta(name string) ([]byte, bool, error)
}

// KV is a single key update. An empty Value makes the key absent.
type KV struct {
	Key   []byte
	Value []byte
}

// Tree is a versioned sparse merkle tree. It is not safe for concurrent use.
type Tree struct {
	store    NodeStore
	hasher   *nodehash.Hasher
	log      logger.Logger
	depth    int
	defaults []nodehash.Digest
	version  uint64
	root     nodehash.Digest
}

type Options struct {
	Depth int
	Log   logger.Logger
}

type Option func(*Options)

// WithDepth sets the address width in bits. Reopening a store requires the
// depth it was created with.
func WithDepth(depth int) Option {
	return func(o *Options) {
		o.Depth = depth
	}
}

func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

// New opens the tree persisted in store, or starts an empty one.
func New(store NodeStore, hasher *nodehash.Hasher, opts ...Option) (*Tree, error) {
	o := Options{Depth: DefaultDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Depth < 1 || o.Depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrDepthRange, o.Depth)
	}
	if o.Log == nil {
		o.Log = logger.Sugar.WithServiceName("smt")
	}

	t := &Tree{
		store:    store,
		hasher:   hasher,
		log:      o.Log,
		depth:    o.Depth,
		defaults: DefaultHashes(hasher, o.Depth),
	}

	if err := t.checkDepth(); err != nil {
		return nil, err
	}

	raw, ok, err := store.GetMeta(MetaVersion)
	if err != nil {
		return nil, err
	}
	if ok {
		if len(raw) != 8 {
			return nil, fmt.Errorf("%w: version is %d bytes", ErrBadMeta, len(raw))
		}
		t.version = binary.BigEndian.Uint64(raw)
	}
	if t.root, err = t.read(nil, 0, nodehash.Digest{}, t.version); err != nil {
		return nil, err
	}
	if ok {
		t.log.Debugf("reopened smt: depth %d, version %d", t.depth, t.version)
	}
	return t, nil
}

func (t *Tree) checkDepth() error {
	raw, ok, err := t.store.GetMeta(MetaDepth)
	if err != nil {
		return err
	}
	var want [2]byte
	binary.BigEndian.PutUint16(want[:], uint16(t.depth))
	if !ok {
		return t.store.PutMeta(MetaDepth, want[:])
	}
	if !bytes.Equal(raw, want[:]) {
		return fmt.Errorf("%w: store %x, requested %d", ErrDepthMismatch, raw, t.depth)
	}
	return nil
}

// StoredDepth returns the depth store was created with, if it holds a tree.
func StoredDepth(store NodeStore) (int, bool, error) {
	raw, ok, err := store.GetMeta(MetaDepth)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(raw) != 2 {
		return 0, false, fmt.Errorf("%w: depth is %d bytes", ErrBadMeta, len(raw))
	}
	return int(binary.BigEndian.Uint16(raw)), true, nil
}

func (t *Tree) Depth() int { return t.depth }

// Version is the number of committed update batches.
func (t *Tree) Version() uint64 { return t.version }

func (t *Tree) Root() nodehash.Digest { return t.root }

func (t *Tree) Hasher() *nodehash.Hasher { return t.hasher }

// Defaults returns Z[0..Depth].
func (t *Tree) Defaults() []nodehash.Digest {
	return append([]nodehash.Digest(nil), t.defaults...)
}

// Update sets the payload for key as a new version and returns the new root.
func (t *Tree) Update(key, payload []byte) (nodehash.Digest, error) {
	return t.UpdateAll([]KV{{Key: key, Value: payload}})
}

// UpdateAll applies the updates in order as a single new version. Paths shared
// by several keys are written once. An empty batch changes nothing.
func (t *Tree) UpdateAll(updates []KV) (nodehash.Digest, error) {
	if len(updates) == 0 {
		return t.root, nil
	}
	version := t.version + 1
	overlay := make(map[nodeKey]nodehash.Digest, len(updates)*(t.depth+1))

	root := t.root
	for _, kv := range updates {
		addr := t.hasher.HashKey(kv.Key)
		node := t.hasher.HashLeaf(kv.Value)
		overlay[keyAt(t.depth, addr)] = node

		for d := t.depth; d > 0; d-- {
			sibling, err := t.read(overlay, d, flipBit(addr, d-1), version)
			if err != nil {
				return nodehash.Digest{}, err
			}
			if bitAt(addr, d-1) == 0 {
				node = t.hasher.HashNode(node, sibling)
			} else {
				node = t.hasher.HashNode(sibling, node)
			}
			overlay[keyAt(d-1, addr)] = node
		}
		root = node
	}

	// sorted so the write order, and any corruption report, is reproducible
	keys := make([]nodeKey, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		if err := t.store.Put(k.id(version), overlay[k]); err != nil {
			return nodehash.Digest{}, err
		}
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], version)
	if err := t.store.PutMeta(MetaVersion, b[:]); err != nil {
		return nodehash.Digest{}, err
	}
	t.version = version
	t.root = root
	return root, nil
}

// Get returns the leaf digest committed for key. Absent keys, including keys
// set to the empty payload, report false.
func (t *Tree) Get(key []byte) (nodehash.Digest, bool, error) {
	leaf, err := t.read(nil, t.depth, t.hasher.HashKey(key), t.version)
	if err != nil {
		return nodehash.Digest{}, false, err
	}
	if leaf == t.defaults[t.depth] {
		return nodehash.Digest{}, false, nil
	}
	return leaf, true, nil
}

// RootAt returns the root as of version. Version 0 is the empty tree.
func (t *Tree) RootAt(version uint64) (nodehash.Digest, error) {
	if version > t.version {
		return nodehash.Digest{}, fmt.Errorf("%w: %d, current %d", ErrVersionOutOfRange, version, t.version)
	}
	return t.read(nil, 0, nodehash.Digest{}, version)
}

// GenerateProof returns the sibling path for key against the current root.
// Keys that were never set prove as absent.
func (t *Tree) GenerateProof(key []byte) (*Proof, error) {
	return t.ProveAt(key, t.version)
}

// ProveAt returns the sibling path for key against the root as of version.
func (t *Tree) ProveAt(key []byte, version uint64) (*Proof, error) {
	if version > t.version {
		return nil, fmt.Errorf("%w: %d, current %d", ErrVersionOutOfRange, version, t.version)
	}
	addr := t.hasher.HashKey(key)
	siblings := make([]nodehash.Digest, t.depth)
	for d := t.depth; d > 0; d-- {
		s, err := t.read(nil, d, flipBit(addr, d-1), version)
		if err != nil {
			return nil, err
		}
		siblings[t.depth-d] = s
	}
	return &Proof{Version: version, Siblings: siblings}, nil
}

// Verify is Verify using the tree's hasher.
func (t *Tree) Verify(root nodehash.Digest, key, payload []byte, proof *Proof) bool {
	return Verify(t.hasher, root, key, payload, proof)
}

// VerifyAbsent is VerifyAbsent using the tree's hasher.
func (t *Tree) VerifyAbsent(root nodehash.Digest, key []byte, proof *Proof) bool {
	return VerifyAbsent(t.hasher, root, key, proof)
}

// read returns the node at depth on the path to addr as of version. Pending
// batch nodes take precedence, then the newest stored version <= version, and
// finally the default for the depth.
func (t *Tree) read(overlay map[nodeKey]nodehash.Digest, depth int, addr nodehash.Digest, version uint64) (nodehash.Digest, error) {
	k := keyAt(depth, addr)
	if d, ok := overlay[k]; ok {
		return d, nil
	}
	_, d, ok, err := t.store.GetFloor(k[:], k.id(version))
	if err != nil {
		return nodehash.Digest{}, err
	}
	if !ok {
		return t.defaults[depth], nil
	}
	return d, nil
}
