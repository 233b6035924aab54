package mmrtesting

import (
	"sync"

	"github.com/forestrie/go-merklebench/nodehash"
)

type TestCallCounter struct {
	mu          sync.Mutex
	MethodCalls map[string]int
}

func (r *TestCallCounter) IncMethodCall(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.MethodCalls == nil {
		r.MethodCalls = make(map[string]int)
	}
	r.MethodCalls[name]++
	return r.MethodCalls[name]
}

func (r *TestCallCounter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MethodCalls = make(map[string]int)
}

func (r *TestCallCounter) MethodCallCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.MethodCalls[name]
}

// NodeStore is the subset of nodestore.Store the engines depend on.
type NodeStore interface {
	Put(id []byte, digest nodehash.Digest) error
	Get(id []byte) (nodehash.Digest, bool, error)
	GetFloor(prefix, id []byte) ([]byte, nodehash.Digest, bool, error)
	PutMeta(name string, value []byte) error
	GetMeta(name string) ([]byte, bool, error)
	Flush() error
}

// CountingStore wraps a NodeStore and counts calls by method name. Every id
// passed to Put is also recorded so tests can assert write once behaviour.
type CountingStore struct {
	TestCallCounter
	NodeStore
	puts map[string]int
}

func NewCountingStore(s NodeStore) *CountingStore {
	return &CountingStore{NodeStore: s, puts: make(map[string]int)}
}

func (c *CountingStore) Put(id []byte, digest nodehash.Digest) error {
	c.IncMethodCall("Put")
	c.mu.Lock()
	c.puts[string(id)]++
	c.mu.Unlock()
	return c.NodeStore.Put(id, digest)
}

func (c *CountingStore) Get(id []byte) (nodehash.Digest, bool, error) {
	c.IncMethodCall("Get")
	return c.NodeStore.Get(id)
}

func (c *CountingStore) GetFloor(prefix, id []byte) ([]byte, nodehash.Digest, bool, error) {
	c.IncMethodCall("GetFloor")
	return c.NodeStore.GetFloor(prefix, id)
}

func (c *CountingStore) Flush() error {
	c.IncMethodCall("Flush")
	return c.NodeStore.Flush()
}

// MaxPutsPerID returns the largest number of Put calls seen for a single id.
func (c *CountingStore) MaxPutsPerID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	most := 0
	for _, n := range c.puts {
		if n > most {
			most = n
		}
	}
	return most
}
