package nodestore

import (
	"fmt"
	"strings"

	"github.com/datatrails/go-datatrails-common/logger"
)

type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendBolt    Backend = "bolt"
	BackendBadger  Backend = "badger"
	BackendLevelDB Backend = "leveldb"

	DefaultBackend = BackendBolt
)

// Backends lists every supported backend, in memory first.
var Backends = []Backend{BackendMemory, BackendBolt, BackendBadger, BackendLevelDB}

func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(name)); b {
	case "":
		return DefaultBackend, nil
	case BackendMemory, BackendBolt, BackendBadger, BackendLevelDB:
		return b, nil
	case "bbolt":
		return BackendBolt, nil
	case "goleveldb":
		return BackendLevelDB, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownBackend, name)
}

type Options struct {
	Backend Backend
	Log     logger.Logger
	// SyncWrites asks the backend to fsync each flushed batch. Open turns it
	// on unless WithSyncWrites(false) is given.
	SyncWrites bool
}

type Option func(*Options)

func WithBackend(b Backend) Option {
	return func(o *Options) {
		o.Backend = b
	}
}

func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

func WithSyncWrites(sync bool) Option {
	return func(o *Options) {
		o.SyncWrites = sync
	}
}
