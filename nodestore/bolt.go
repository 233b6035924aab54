package nodestore

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltFileName = "nodes.db"

var boltBucket = []byte("nodes")

type boltBackend struct {
	db   *bolt.DB
	sync bool
}

func openBolt(path string, o Options) (*boltBackend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(path, boltFileName), 0o600, &bolt.Options{
		Timeout:      time.Second,
		FreelistType: bolt.FreelistMapType,
		NoSync:       !o.SyncWrites,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltBackend{db: db, sync: o.SyncWrites}, nil
}

func (b *boltBackend) get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		// bolt values are only valid for the life of the transaction
		if v := tx.Bucket(boltBucket).Get(key); v != nil {
			value = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (b *boltBackend) floor(prefix, key []byte) ([]byte, []byte, bool, error) {
	var fk, fv []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		k, v := c.Seek(key)
		switch {
		case k == nil:
			k, v = c.Last()
		case !bytes.Equal(k, key):
			k, v = c.Prev()
		}
		if k != nil && bytes.HasPrefix(k, prefix) {
			fk, fv = bytes.Clone(k), bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return fk, fv, fk != nil, nil
}

func (b *boltBackend) commit(entries []entry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		// entries arrive sorted, which suits bolt's append heavy fill
		bkt.FillPercent = 0.9
		for _, e := range entries {
			if err := bkt.Put(e.key, e.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) close() error {
	if !b.sync {
		if err := b.db.Sync(); err != nil {
			_ = b.db.Close()
			return err
		}
	}
	return b.db.Close()
}
