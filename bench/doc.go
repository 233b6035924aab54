// Package bench drives an accumulator through a range of insertions and
// times each operation.
//
// The harness is written once against the Accumulator interface. NewMMR and
// NewSMT adapt the two engines; each keeps its own proof shape inside the
// discriminated Proof value. Payloads come from a seeded Workload, so a run
// resumed at any start index inserts exactly what an uninterrupted run would
// have.
package bench
