package nodestore

import "errors"

var (
	ErrStoreCorruption = errors.New("nodestore: conflicting digest for existing node id")
	ErrIO              = errors.New("nodestore: io failure")
	ErrClosed          = errors.New("nodestore: store is closed")
	ErrUnknownBackend  = errors.New("nodestore: unknown backend")
	ErrReservedID      = errors.New("nodestore: node id uses the reserved meta prefix")
	ErrEmptyID         = errors.New("nodestore: empty node id")
)
