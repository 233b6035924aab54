package smt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-merklebench/mmrtesting"
	"github.com/forestrie/go-merklebench/nodehash"
)

// batchFixture sets keys 0..29 and returns the keys and payloads for those
// plus two keys that were never set.
func batchFixture(t *testing.T, tree *Tree) ([][]byte, [][]byte) {
	var updates []KV
	for i := uint64(0); i < 30; i++ {
		updates = append(updates, KV{Key: IndexKey(i), Value: value(i)})
	}
	_, err := tree.UpdateAll(updates)
	require.NoError(t, err)

	var keys, payloads [][]byte
	for i := uint64(0); i < 30; i += 2 {
		keys = append(keys, IndexKey(i))
		payloads = append(payloads, value(i))
	}
	keys = append(keys, IndexKey(100), IndexKey(101))
	payloads = append(payloads, nil, nil)
	return keys, payloads
}

func TestProveAll(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestProveAll"})
	for _, depth := range []int{64, 256} {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			tree := newTestTree(t, &tc, tc.NewMemoryStore(), depth)
			keys, payloads := batchFixture(t, tree)

			proof, err := tree.ProveAll(keys)
			require.NoError(t, err)
			assert.Equal(t, uint16(depth), proof.Depth)
			assert.True(t, tree.VerifyAll(tree.Root(), keys, payloads, proof))

			// merged paths are smaller than the proofs they replace
			batch, err := proof.Encode()
			require.NoError(t, err)
			singles := 0
			for _, key := range keys {
				p, err := tree.GenerateProof(key)
				require.NoError(t, err)
				data, err := p.Encode(tc.Hasher)
				require.NoError(t, err)
				singles += len(data)
			}
			assert.Less(t, len(batch), singles)

			decoded, err := DecodeBatchProof(batch)
			require.NoError(t, err)
			assert.True(t, VerifyAll(tc.Hasher, tree.Root(), keys, payloads, decoded))
		})
	}
}

func TestVerifyAllRejectsTampering(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestVerifyAllTamper"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 256)
	keys, payloads := batchFixture(t, tree)
	root := tree.Root()

	proof, err := tree.ProveAll(keys)
	require.NoError(t, err)
	require.True(t, tree.VerifyAll(root, keys, payloads, proof))

	for j := range keys {
		forged := append([][]byte(nil), payloads...)
		forged[j] = []byte("forged")
		assert.False(t, tree.VerifyAll(root, keys, forged, proof), "forged payload %d", j)
	}

	// a present key claimed absent
	forged := append([][]byte(nil), payloads...)
	forged[0] = nil
	assert.False(t, tree.VerifyAll(root, keys, forged, proof))

	clone := func() *BatchProof {
		c := *proof
		c.Bitmap = append([]byte(nil), proof.Bitmap...)
		c.Siblings = append([]nodehash.Digest(nil), proof.Siblings...)
		return &c
	}
	require.NotEmpty(t, proof.Siblings)

	p := clone()
	p.Siblings[0][0] ^= 1
	assert.False(t, tree.VerifyAll(root, keys, payloads, p))

	p = clone()
	p.Siblings = p.Siblings[1:]
	assert.False(t, tree.VerifyAll(root, keys, payloads, p))

	p = clone()
	p.Bitmap = append(p.Bitmap, 0)
	assert.False(t, tree.VerifyAll(root, keys, payloads, p))

	p = clone()
	p.Depth = 255
	assert.False(t, tree.VerifyAll(root, keys, payloads, p))

	// the proof only covers the keys it was made for
	assert.False(t, tree.VerifyAll(root, keys[1:], payloads[1:], proof))
	assert.False(t, tree.VerifyAll(root, keys, payloads[1:], proof))
	assert.False(t, tree.VerifyAll(root, keys, payloads, nil))
}

func TestProveAllAtVersion(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestProveAllAt"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 256)

	keys := [][]byte{IndexKey(0), IndexKey(1), IndexKey(2)}
	for i := uint64(0); i < 3; i++ {
		_, err := tree.Update(IndexKey(i), value(i))
		require.NoError(t, err)
	}

	for v := uint64(0); v <= tree.Version(); v++ {
		root, err := tree.RootAt(v)
		require.NoError(t, err)
		proof, err := tree.ProveAllAt(keys, v)
		require.NoError(t, err)
		assert.Equal(t, v, proof.Version)

		// key i was set by version i+1
		payloads := make([][]byte, len(keys))
		for i := uint64(0); i < v; i++ {
			payloads[i] = value(i)
		}
		assert.True(t, tree.VerifyAll(root, keys, payloads, proof), "version %d", v)
	}

	_, err := tree.ProveAllAt(keys, tree.Version()+1)
	assert.ErrorIs(t, err, ErrVersionOutOfRange)
}

func TestProveAllErrors(t *testing.T) {
	tc := mmrtesting.NewTestContext(t, mmrtesting.TestConfig{TestLabelPrefix: "TestProveAllErrors"})
	tree := newTestTree(t, &tc, tc.NewMemoryStore(), 256)

	_, err := tree.ProveAll(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	_, err = tree.ProveAll([][]byte{IndexKey(3), IndexKey(4), IndexKey(3)})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.False(t, tree.VerifyAll(tree.Root(), nil, nil, &BatchProof{Depth: 256}))
}
