package nodestore

import (
	"bytes"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type levelDBBackend struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

func openLevelDB(path string, o Options) (*levelDBBackend, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		// node ids are high entropy, compression buys nothing
		Compression: opt.NoCompression,
	})
	if err != nil {
		return nil, err
	}
	return &levelDBBackend{db: db, wo: &opt.WriteOptions{Sync: o.SyncWrites}}, nil
}

func (l *levelDBBackend) get(key []byte) ([]byte, bool, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (l *levelDBBackend) floor(prefix, key []byte) ([]byte, []byte, bool, error) {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var ok bool
	if it.Seek(key) {
		ok = bytes.Equal(it.Key(), key) || it.Prev()
	} else {
		ok = it.Last()
	}
	if err := it.Error(); err != nil {
		return nil, nil, false, err
	}
	if !ok {
		return nil, nil, false, nil
	}
	// iterator buffers are reused on the next move
	return bytes.Clone(it.Key()), bytes.Clone(it.Value()), true, nil
}

func (l *levelDBBackend) commit(entries []entry) error {
	batch := new(leveldb.Batch)
	for _, e := range entries {
		batch.Put(e.key, e.value)
	}
	return l.db.Write(batch, l.wo)
}

func (l *levelDBBackend) close() error {
	return l.db.Close()
}
