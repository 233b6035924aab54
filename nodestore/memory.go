package nodestore

import (
	"bytes"

	"github.com/google/btree"
)

// memoryBackend keeps committed entries in an ordered btree. Nothing survives
// Close.
type memoryBackend struct {
	tree *btree.BTreeG[entry]
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{tree: newEntryTree()}
}

func (m *memoryBackend) get(key []byte) ([]byte, bool, error) {
	e, ok := m.tree.Get(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *memoryBackend) floor(prefix, key []byte) ([]byte, []byte, bool, error) {
	var found entry
	var ok bool
	m.tree.DescendLessOrEqual(entry{key: key}, func(e entry) bool {
		found, ok = e, bytes.HasPrefix(e.key, prefix)
		return false
	})
	if !ok {
		return nil, nil, false, nil
	}
	return found.key, found.value, true, nil
}

func (m *memoryBackend) commit(entries []entry) error {
	for _, e := range entries {
		m.tree.ReplaceOrInsert(e)
	}
	return nil
}

func (m *memoryBackend) close() error {
	m.tree.Clear(false)
	return nil
}
