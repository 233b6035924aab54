package mmrtesting

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/nodestore"
)

type TestContext struct {
	Log    logger.Logger
	T      *testing.T
	Hasher *nodehash.Hasher
	// Root is a per test temporary directory, removed when the test ends.
	Root string
}

type TestConfig struct {
	TestLabelPrefix string
	// LogLevel defaults to NOOP so benchmarks and table tests stay quiet.
	LogLevel string
	// HashAlgorithm defaults to blake2b.
	HashAlgorithm nodehash.Algorithm
}

func NewTestContext(t *testing.T, cfg TestConfig) TestContext {
	c := TestContext{
		T:    t,
		Root: t.TempDir(),
	}
	level := cfg.LogLevel
	if level == "" {
		level = "NOOP"
	}
	logger.New(level)
	c.Log = logger.Sugar.WithServiceName(cfg.TestLabelPrefix)

	alg := cfg.HashAlgorithm
	if alg == "" {
		alg = nodehash.Blake2b256
	}
	var err error
	c.Hasher, err = nodehash.New(alg)
	require.NoError(t, err)

	return c
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

// StorePath returns a stable path under Root for the named store. Opening the
// same name twice reopens the same data.
func (c *TestContext) StorePath(name string, backend nodestore.Backend) string {
	return filepath.Join(c.Root, fmt.Sprintf("%s-%s", name, backend))
}

// OpenStore opens the named store and closes it when the test ends. Tests that
// need to reopen a store should call Close themselves, which is idempotent.
func (c *TestContext) OpenStore(name string, backend nodestore.Backend) *nodestore.Store {
	s, err := nodestore.Open(
		c.StorePath(name, backend),
		nodestore.WithBackend(backend),
		nodestore.WithLogger(c.Log),
	)
	require.NoError(c.T, err)
	c.T.Cleanup(func() { _ = s.Close() })
	return s
}

// NewMemoryStore is shorthand for a throw away in memory store.
func (c *TestContext) NewMemoryStore() *nodestore.Store {
	return c.OpenStore("mem", nodestore.BackendMemory)
}

// ForEachBackend runs fn as a sub test against a fresh store for every
// backend.
func (c *TestContext) ForEachBackend(name string, fn func(t *testing.T, s *nodestore.Store)) {
	for _, backend := range nodestore.Backends {
		backend := backend
		c.T.Run(string(backend), func(t *testing.T) {
			s, err := nodestore.Open(
				c.StorePath(name+"-"+strings.ReplaceAll(t.Name(), "/", "_"), backend),
				nodestore.WithBackend(backend),
				nodestore.WithLogger(c.Log),
			)
			require.NoError(t, err)
			defer s.Close()
			fn(t, s)
		})
	}
}
