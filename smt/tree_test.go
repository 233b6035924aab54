package smt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-merklebench/mmrtesting"
	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/nodestore"
)

func newTestTree(t *testing.T, tc *mmrtesting.TestContext, store NodeStore, depth int) *Tree {
	tree, err := New(store, tc.Hasher, WithDepth(depth), WithLogger(tc.Log))
	require.NoError(t, err)
	return tree
}

func value(i uint64) []byte { return []byte(fmt.Sprintf("value-%d", i)) }

// naiveRoot computes the root of a depth 8 tree by hashing every level in
// full. leaves maps the 8 bit address to the leaf digest.
func naiveRoot(h *nodehash.Hasher, leaves map[byte]nodehash.Digest) nodehash.Digest {
	level := make([]nodehash.Digest, 256)
	for i := range level {
		if d, ok := leaves[byte(i)]; ok {
			level[i] = d
			continue
		}
		level[i] = h.HashLeaf(nil)
	}
	for len(level) > 1 {
		next := make([]nodehash.Digest, len(level)/2)
		for i := range next {
			next[i] = h.HashNode(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func TestDefaultHashes(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestDefaultHashes"})
	h := tc.Hasher
	z := DefaultHashes(h, 4)
	require.Len(t, z, 5)
	assert.Equal(t, h.HashLeaf(nil), z[4])
	for d := 0; d < 4; d++ {
		assert.Equal(t, h.HashNode(z[d+1], z[d+1]), z[d])
	}

	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 4)
	assert.Equal(t, z[0], tree.Root())
	assert.Equal(t, uint64(0), tree.Version())
}

func TestDepthRange(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestDepthRange"})
	for _, depth := range []int{0, -1, 257} {
		_, err := New(tc.NewMemoryStore(), tc.Hasher, WithDepth(depth), WithLogger(tc.Log))
		assert.ErrorIs(t, err, ErrDepthRange, "depth %d", depth)
	}
	for _, depth := range []int{1, 8, 256} {
		tree := newTestTree(t, &tc, tc.NewMemoryStore(), depth)
		assert.Equal(t, depth, tree.Depth())
	}
}

// TestKey5Depth8 sets key 5 on an empty depth 8 tree, proves it present and
// proves a never set key absent against the same root.
func TestKey5Depth8(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestKey5Depth8"})
	h := tc.Hasher
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 8)

	key5 := IndexKey(5)
	root, err := tree.Update(key5, []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, root, tree.Root())
	assert.Equal(t, naiveRoot(h, map[byte]nodehash.Digest{h.HashKey(key5)[0]: h.HashLeaf([]byte("v"))}), root)

	proof, err := tree.GenerateProof(key5)
	require.NoError(t, err)
	assert.Equal(t, 8, proof.Depth())
	assert.True(t, tree.Verify(root, key5, []byte("v"), proof))
	assert.False(t, tree.VerifyAbsent(root, key5, proof))

	// 8 bit addresses can collide, so find the first key after 5 that lands
	// elsewhere
	other := uint64(6)
	for h.HashKey(IndexKey(other))[0] == h.HashKey(key5)[0] {
		other++
	}
	key6 := IndexKey(other)
	absent, err := tree.GenerateProof(key6)
	require.NoError(t, err)
	assert.True(t, tree.VerifyAbsent(root, key6, absent))
	assert.False(t, tree.Verify(root, key6, []byte("v"), absent))
	assert.False(t, tree.Verify(root, key6, []byte("anything"), absent))
}

func TestUpdateThenProve(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestUpdateThenProve"})
	for _, depth := range []int{1, 3, 16, 256} {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			tree := newTestTree(t, &tc, tc.NewMemoryStore(), depth)
			const n = 24
			for i := uint64(0); i < n; i++ {
				root, err := tree.Update(IndexKey(i), value(i))
				require.NoError(t, err)
				proof, err := tree.GenerateProof(IndexKey(i))
				require.NoError(t, err)
				require.True(t, tree.Verify(root, IndexKey(i), value(i), proof), "key %d", i)
			}
			if depth < 32 {
				// narrow trees may collide, only the last writer per address survives
				return
			}
			root := tree.Root()
			for i := uint64(0); i < n; i++ {
				proof, err := tree.GenerateProof(IndexKey(i))
				require.NoError(t, err)
				assert.True(t, tree.Verify(root, IndexKey(i), value(i), proof), "key %d", i)

				got, ok, err := tree.Get(IndexKey(i))
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, tc.Hasher.HashLeaf(value(i)), got)
			}
		})
	}
}

func TestMatchesNaiveRoot(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestMatchesNaiveRoot"})
	h := tc.Hasher
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 8)

	leaves := make(map[byte]nodehash.Digest)
	for i := uint64(0); i < 40; i++ {
		_, err := tree.Update(IndexKey(i), value(i))
		require.NoError(t, err)
		leaves[h.HashKey(IndexKey(i))[0]] = h.HashLeaf(value(i))
		require.Equal(t, naiveRoot(h, leaves), tree.Root(), "after key %d", i)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestUpdateIsIdempotent"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 32)

	first, err := tree.Update([]byte("k"), []byte("v"))
	require.NoError(t, err)
	second, err := tree.Update([]byte("k"), []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(2), tree.Version())
}

func TestEmptyPayloadRestoresAbsent(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestEmptyPayloadRestoresAbsent"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 256)
	empty := tree.Root()

	_, err := tree.Update([]byte("a"), []byte("1"))
	require.NoError(t, err)
	withA := tree.Root()
	_, err = tree.Update([]byte("b"), []byte("2"))
	require.NoError(t, err)

	_, err = tree.Update([]byte("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, withA, tree.Root())
	_, ok, err := tree.Get([]byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tree.Update([]byte("a"), []byte{})
	require.NoError(t, err)
	assert.Equal(t, empty, tree.Root())
}

func TestUpdateAllMatchesSequential(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestUpdateAllMatchesSequential"})
	seq := newTestTree(t, &tc, tc.NewMemoryStore(), 64)
	cs := mmrtesting.NewCountingStore(tc.NewMemoryStore())
	batch := newTestTree(t, &tc, cs, 64)

	var kvs []KV
	for i := uint64(0); i < 30; i++ {
		_, err := seq.Update(IndexKey(i), value(i))
		require.NoError(t, err)
		kvs = append(kvs, KV{Key: IndexKey(i), Value: value(i)})
	}
	// a later update to the same key in one batch wins
	_, err := seq.Update(IndexKey(3), value(300))
	require.NoError(t, err)
	kvs = append(kvs, KV{Key: IndexKey(3), Value: value(300)})

	root, err := batch.UpdateAll(kvs)
	require.NoError(t, err)
	assert.Equal(t, seq.Root(), root)
	assert.Equal(t, uint64(1), batch.Version())
	assert.Equal(t, 1, cs.MaxPutsPerID())

	// an empty batch is not a new version
	same, err := batch.UpdateAll(nil)
	require.NoError(t, err)
	assert.Equal(t, root, same)
	assert.Equal(t, uint64(1), batch.Version())
}

func TestNodesAreWriteOnce(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestNodesAreWriteOnce"})
	cs := mmrtesting.NewCountingStore(tc.NewMemoryStore())
	tree := newTestTree(t, &tc, cs, 16)

	for i := 0; i < 5; i++ {
		_, err := tree.Update([]byte("same"), []byte("value"))
		require.NoError(t, err)
		_, err = tree.Update([]byte("other"), value(uint64(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cs.MaxPutsPerID())
	// depth+1 nodes per single key version
	assert.Equal(t, 10*17, cs.MethodCallCount("Put"))
}

func TestHistoricalRootsAndProofs(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestHistoricalRootsAndProofs"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 256)

	roots := []nodehash.Digest{tree.Root()}
	for i := uint64(0); i < 10; i++ {
		// key 0 is rewritten every version
		_, err := tree.UpdateAll([]KV{
			{Key: IndexKey(0), Value: value(100 + i)},
			{Key: IndexKey(i + 1), Value: value(i + 1)},
		})
		require.NoError(t, err)
		roots = append(roots, tree.Root())
	}

	for v := uint64(0); v <= tree.Version(); v++ {
		root, err := tree.RootAt(v)
		require.NoError(t, err)
		require.Equal(t, roots[v], root, "version %d", v)

		proof, err := tree.ProveAt(IndexKey(0), v)
		require.NoError(t, err)
		assert.Equal(t, v, proof.Version)
		if v == 0 {
			assert.True(t, tree.VerifyAbsent(root, IndexKey(0), proof))
			continue
		}
		assert.True(t, tree.Verify(root, IndexKey(0), value(100+v-1), proof), "version %d", v)
		if v < tree.Version() {
			assert.False(t, tree.Verify(tree.Root(), IndexKey(0), value(100+v-1), proof))
		}

		// keys added after v are absent at v
		later, err := tree.ProveAt(IndexKey(v+1), v)
		require.NoError(t, err)
		assert.True(t, tree.VerifyAbsent(root, IndexKey(v+1), later), "version %d", v)
	}

	_, err := tree.RootAt(tree.Version() + 1)
	assert.ErrorIs(t, err, ErrVersionOutOfRange)
	_, err = tree.ProveAt(IndexKey(0), tree.Version()+1)
	assert.ErrorIs(t, err, ErrVersionOutOfRange)
}

func TestVerifyRejectsTampering(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestVerifyRejectsTampering"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 32)
	for i := uint64(0); i < 8; i++ {
		_, err := tree.Update(IndexKey(i), value(i))
		require.NoError(t, err)
	}
	root := tree.Root()
	proof, err := tree.GenerateProof(IndexKey(2))
	require.NoError(t, err)
	require.True(t, tree.Verify(root, IndexKey(2), value(2), proof))

	for j := range proof.Siblings {
		p := &Proof{Siblings: append([]nodehash.Digest(nil), proof.Siblings...)}
		p.Siblings[j][j%nodehash.Size] ^= 0x01
		assert.False(t, tree.Verify(root, IndexKey(2), value(2), p), "sibling %d", j)
	}
	wrongRoot := root
	wrongRoot[0] ^= 0x01
	assert.False(t, tree.Verify(wrongRoot, IndexKey(2), value(2), proof))
	assert.False(t, tree.Verify(root, IndexKey(3), value(2), proof))
	assert.False(t, tree.Verify(root, IndexKey(2), value(3), proof))
	assert.False(t, tree.Verify(root, IndexKey(2), value(2), nil))
	assert.False(t, tree.Verify(root, IndexKey(2), value(2), &Proof{}))
	assert.False(t, tree.Verify(root, IndexKey(2), value(2), &Proof{Siblings: proof.Siblings[1:]}))
	assert.False(t, tree.Verify(root, IndexKey(2), value(2), &Proof{Siblings: make([]nodehash.Digest, MaxDepth+1)}))
}

func TestProofEncoding(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestProofEncoding"})
	h := tc.Hasher
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 256)
	for i := uint64(0); i < 4; i++ {
		_, err := tree.Update(IndexKey(i), value(i))
		require.NoError(t, err)
	}
	proof, err := tree.GenerateProof(IndexKey(1))
	require.NoError(t, err)

	data, err := proof.Encode(h)
	require.NoError(t, err)
	// four keys leave at most a handful of non default siblings
	assert.Less(t, len(data), 8*nodehash.Size)

	decoded, err := DecodeProof(h, data)
	require.NoError(t, err)
	assert.Equal(t, proof, decoded)
	assert.True(t, tree.Verify(tree.Root(), IndexKey(1), value(1), decoded))

	_, err = DecodeProof(h, []byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrProofEncoding)

	_, err = (&Proof{}).Encode(h)
	assert.ErrorIs(t, err, ErrProofDepth)

	bad, err := proofEncMode.Marshal(compactProof{Depth: 8, Bitmap: []byte{0x80}})
	require.NoError(t, err)
	_, err = DecodeProof(h, bad)
	assert.ErrorIs(t, err, ErrProofEncoding)
}

func TestReopen(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestReopen"})

	fresh := newTestTree(t, &tc, tc.NewMemoryStore(), 256)
	for i := uint64(0); i < 12; i++ {
		_, err := fresh.Update(IndexKey(i), value(i))
		require.NoError(t, err)
	}

	for _, backend := range []nodestore.Backend{nodestore.BackendBolt, nodestore.BackendBadger, nodestore.BackendLevelDB} {
		t.Run(string(backend), func(t *testing.T) {
			s := tc.OpenStore("reopen", backend)
			tree := newTestTree(t, &tc, s, 256)
			for i := uint64(0); i < 7; i++ {
				_, err := tree.Update(IndexKey(i), value(i))
				require.NoError(t, err)
			}
			require.NoError(t, s.Close())

			s = tc.OpenStore("reopen", backend)
			_, err := New(s, tc.Hasher, WithDepth(64), WithLogger(tc.Log))
			assert.ErrorIs(t, err, ErrDepthMismatch)

			tree = newTestTree(t, &tc, s, 256)
			assert.Equal(t, uint64(7), tree.Version())
			for i := uint64(7); i < 12; i++ {
				_, err := tree.Update(IndexKey(i), value(i))
				require.NoError(t, err)
			}
			assert.Equal(t, fresh.Root(), tree.Root())
		})
	}
}
