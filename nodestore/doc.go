// Package nodestore persists accumulator nodes as fixed width digests keyed by
// opaque node ids.
//
// Node entries are write once. Writing the same digest again is a no-op and
// writing a different digest for an existing id fails with ErrStoreCorruption.
// Engine metadata (leaf counts, versions, checkpoints) lives in a separate
// mutable key space reached through PutMeta and GetMeta.
//
// Writes are buffered in memory and are visible to reads immediately. Flush
// commits the buffer to the backend in one batch. Close flushes before
// releasing the backend, so callers should always
//
//	s, err := nodestore.Open(path, nodestore.WithBackend(nodestore.BackendBolt))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// Available backends are an in memory btree, bbolt, badger and leveldb.
package nodestore
