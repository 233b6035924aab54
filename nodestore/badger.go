package nodestore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dgraph-io/badger/v4"
)

type badgerBackend struct {
	db *badger.DB
}

func openBadger(path string, o Options) (*badgerBackend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{o.Log}).
		WithSyncWrites(o.SyncWrites)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerBackend{db: db}, nil
}

func (b *badgerBackend) get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *badgerBackend) floor(prefix, key []byte) ([]byte, []byte, bool, error) {
	var fk, fv []byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// in reverse mode Seek lands on the greatest key <= key
		it.Seek(key)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		fk, fv = item.KeyCopy(nil), v
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return fk, fv, fk != nil, nil
}

func (b *badgerBackend) commit(entries []entry) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		if err := wb.Set(e.key, e.value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through the service logger.
type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) format(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf("badger: %s", l.format(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Infof("badger: %s", l.format(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf("badger: %s", l.format(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf("badger: %s", l.format(format, args...))
}
