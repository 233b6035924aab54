package nodestore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/btree"

	"github.com/forestrie/go-merklebench/nodehash"
)

// MetaPrefix is the first byte of every metadata key. Node ids must not start
// with it.
const MetaPrefix = 'X'

const btreeDegree = 32

type entry struct {
	key   []byte
	value []byte
}

func entryLess(a, b entry) bool { return bytes.Compare(a.key, b.key) < 0 }

func newEntryTree() *btree.BTreeG[entry] {
	return btree.NewG[entry](btreeDegree, entryLess)
}

// backend is the ordered key value layer beneath a Store.
type backend interface {
	get(key []byte) ([]byte, bool, error)
	// floor returns the greatest key <= key that starts with prefix
	floor(prefix, key []byte) ([]byte, []byte, bool, error)
	// commit writes entries, which are sorted by key, in a single batch
	commit(entries []entry) error
	close() error
}

// Stats counts store traffic since Open.
type Stats struct {
	Puts    uint64
	Gets    uint64
	Floors  uint64
	Flushes uint64
	Flushed uint64
	Pending int
}

// Store is a write once node store with a read-your-writes buffer. All methods
// are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	opts    Options
	log     logger.Logger
	path    string
	be      backend
	pending *btree.BTreeG[entry]
	stats   Stats
	closed  bool
}

// Open opens, creating if necessary, the store at path using the configured
// backend. The memory backend ignores path.
func Open(path string, opts ...Option) (*Store, error) {
	o := Options{Backend: DefaultBackend, SyncWrites: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Log == nil {
		o.Log = logger.Sugar.WithServiceName("nodestore")
	}

	var be backend
	var err error
	switch o.Backend {
	case BackendMemory:
		be = newMemoryBackend()
	case BackendBolt:
		be, err = openBolt(path, o)
	case BackendBadger:
		be, err = openBadger(path, o)
	case BackendLevelDB:
		be, err = openLevelDB(path, o)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, o.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s store at %s: %w", ErrIO, o.Backend, path, err)
	}

	o.Log.Debugf("opened %s store at %s", o.Backend, path)

	return &Store{
		opts:    o,
		log:     o.Log,
		path:    path,
		be:      be,
		pending: newEntryTree(),
	}, nil
}

func (s *Store) Backend() Backend { return s.opts.Backend }

func (s *Store) Path() string { return s.path }

// SyncWrites reports whether Flush fsyncs the backend.
func (s *Store) SyncWrites() bool { return s.opts.SyncWrites }

// Put records digest under id. Re-putting an identical digest is a no-op.
func (s *Store) Put(id []byte, digest nodehash.Digest) error {
	if len(id) == 0 {
		return ErrEmptyID
	}
	if id[0] == MetaPrefix {
		return fmt.Errorf("%w: %x", ErrReservedID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stats.Puts++

	existing, ok, err := s.lookup(id)
	if err != nil {
		return err
	}
	if ok {
		if !bytes.Equal(existing, digest[:]) {
			return fmt.Errorf("%w: id %x has %x, put %x", ErrStoreCorruption, id, existing, digest[:])
		}
		return nil
	}

	value := make([]byte, nodehash.Size)
	copy(value, digest[:])
	s.pending.ReplaceOrInsert(entry{key: bytes.Clone(id), value: value})
	return nil
}

// Get returns the digest stored under id.
func (s *Store) Get(id []byte) (nodehash.Digest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nodehash.Digest{}, false, ErrClosed
	}
	s.stats.Gets++

	value, ok, err := s.lookup(id)
	if err != nil || !ok {
		return nodehash.Digest{}, false, err
	}
	return s.digest(id, value)
}

// GetFloor returns the entry with the greatest id <= id among the ids starting
// with prefix. It is used to read versioned nodes, where the version is the id
// suffix.
func (s *Store) GetFloor(prefix, id []byte) ([]byte, nodehash.Digest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nodehash.Digest{}, false, ErrClosed
	}
	s.stats.Floors++

	var pk, pv []byte
	s.pending.DescendLessOrEqual(entry{key: id}, func(e entry) bool {
		if bytes.HasPrefix(e.key, prefix) {
			pk, pv = e.key, e.value
		}
		return false
	})

	bk, bv, ok, err := s.be.floor(prefix, id)
	if err != nil {
		return nil, nodehash.Digest{}, false, fmt.Errorf("%w: floor %x: %w", ErrIO, id, err)
	}
	if ok && (pk == nil || bytes.Compare(bk, pk) > 0) {
		pk, pv = bk, bv
	}
	if pk == nil {
		return nil, nodehash.Digest{}, false, nil
	}
	d, _, err := s.digest(pk, pv)
	if err != nil {
		return nil, nodehash.Digest{}, false, err
	}
	return bytes.Clone(pk), d, true, nil
}

// PutMeta sets a mutable metadata value.
func (s *Store) PutMeta(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending.ReplaceOrInsert(entry{key: metaKey(name), value: bytes.Clone(value)})
	return nil
}

func (s *Store) GetMeta(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	value, ok, err := s.lookup(metaKey(name))
	if err != nil || !ok {
		return nil, false, err
	}
	return bytes.Clone(value), true, nil
}

// Flush commits all buffered writes to the backend.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flush()
}

func (s *Store) flush() error {
	n := s.pending.Len()
	if n == 0 {
		return nil
	}
	batch := make([]entry, 0, n)
	s.pending.Ascend(func(e entry) bool {
		batch = append(batch, e)
		return true
	})
	if err := s.be.commit(batch); err != nil {
		return fmt.Errorf("%w: commit %d entries: %w", ErrIO, n, err)
	}
	s.pending.Clear(false)
	s.stats.Flushes++
	s.stats.Flushed += uint64(n)
	s.log.Debugf("flushed %d entries to %s", n, s.opts.Backend)
	return nil
}

// Close flushes pending writes and releases the backend. Closing twice is a
// no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.flush()
	if err := s.be.close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return flushErr
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = s.pending.Len()
	return st
}

// lookup checks pending writes before the backend. The caller holds mu.
func (s *Store) lookup(key []byte) ([]byte, bool, error) {
	if e, ok := s.pending.Get(entry{key: key}); ok {
		return e.value, true, nil
	}
	value, ok, err := s.be.get(key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %x: %w", ErrIO, key, err)
	}
	return value, ok, nil
}

func (s *Store) digest(id, value []byte) (nodehash.Digest, bool, error) {
	d, err := nodehash.DigestFromBytes(value)
	if err != nil {
		return nodehash.Digest{}, false, fmt.Errorf("%w: id %x: %w", ErrStoreCorruption, id, err)
	}
	return d, true, nil
}

func metaKey(name string) []byte {
	return append([]byte{MetaPrefix}, name...)
}
