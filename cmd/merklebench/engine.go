package main

import (
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-merklebench/bench"
	"github.com/forestrie/go-merklebench/mmr"
	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/nodestore"
	"github.com/forestrie/go-merklebench/smt"
)

// metaHash records the node hash a store was built with. Neither engine can
// detect a different hash on reopen, they would just compute other roots.
const metaHash = "bench.hash"

var ErrHashMismatch = errors.New("store was built with a different node hash")

func openStore(path string, cfg settings, log logger.Logger) (*nodestore.Store, error) {
	store, err := nodestore.Open(path,
		nodestore.WithBackend(cfg.Backend),
		nodestore.WithSyncWrites(cfg.SyncWrites),
		nodestore.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if err = checkHash(store, cfg.Hash); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func checkHash(store *nodestore.Store, alg nodehash.Algorithm) error {
	recorded, ok, err := store.GetMeta(metaHash)
	if err != nil {
		return err
	}
	if !ok {
		return store.PutMeta(metaHash, []byte(alg))
	}
	if nodehash.Algorithm(recorded) != alg {
		return fmt.Errorf("%w: store %s, requested %s", ErrHashMismatch, recorded, alg)
	}
	return nil
}

func openEngine(kind bench.Kind, store *nodestore.Store, cfg settings, log logger.Logger) (bench.Accumulator, error) {
	hasher, err := nodehash.New(cfg.Hash)
	if err != nil {
		return nil, err
	}
	switch kind {
	case bench.KindMMR:
		acc, err := mmr.New(store, hasher, mmr.WithLogger(log))
		if err != nil {
			return nil, err
		}
		m, err := bench.NewMMR(acc, store)
		if err != nil {
			return nil, err
		}
		return m, nil
	case bench.KindSMT:
		depth := cfg.Depth
		if !cfg.DepthSet {
			stored, ok, err := smt.StoredDepth(store)
			if err != nil {
				return nil, err
			}
			if ok {
				depth = stored
			}
		}
		tree, err := smt.New(store, hasher, smt.WithDepth(depth), smt.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return bench.NewSMT(tree), nil
	}
	return nil, fmt.Errorf("%w: %q", bench.ErrUnknownEngine, kind)
}

// rootAt returns the engine's root as it was at size, the leaf count for the
// mmr or the version for the smt.
func rootAt(acc bench.Accumulator, size uint64) (nodehash.Digest, error) {
	switch a := acc.(type) {
	case *bench.MMR:
		return a.Accumulator().RootAt(size)
	case *bench.SMT:
		return a.Tree().RootAt(size)
	}
	return nodehash.Digest{}, fmt.Errorf("%w: %T", bench.ErrUnknownEngine, acc)
}

func depthOf(acc bench.Accumulator) uint16 {
	if s, ok := acc.(*bench.SMT); ok {
		return uint16(s.Tree().Depth())
	}
	return 0
}
