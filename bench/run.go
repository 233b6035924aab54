package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-merklebench/nodehash"
)

// DefaultCommitEvery matches a store commit per hundred operations.
const DefaultCommitEvery = 100

// Flusher is the store durability barrier. *nodestore.Store satisfies it.
type Flusher interface {
	Flush() error
}

type Config struct {
	Start uint64
	End   uint64
	// Prove also times a proof generation and verification after each
	// insert. A proof that fails to verify aborts the run.
	Prove bool
	// BatchSize, when non zero, proves every BatchSize consecutive indices
	// with a single batch proof once they are inserted, and verifies it. A
	// shorter final batch is proven when the run completes.
	BatchSize uint64
	// CommitEvery flushes the store after this many inserts. Zero selects
	// DefaultCommitEvery.
	CommitEvery uint64
	Workload    Workload
	Flusher     Flusher
	Log         logger.Logger
	Metrics     *Metrics
}

// Report is the outcome of a run, complete or not.
type Report struct {
	Engine Kind
	Start  uint64
	// Next is the first index not inserted. It equals End for a complete run.
	Next    uint64
	End     uint64
	Root    nodehash.Digest
	Size    uint64
	Elapsed time.Duration
	Ops     []Stats
	// ProofBytes is the total encoded size of the generated proofs.
	ProofBytes uint64
}

// Inserted is the number of indices processed.
func (r *Report) Inserted() uint64 { return r.Next - r.Start }

// Run inserts the payload for every index in [cfg.Start, cfg.End) into acc,
// in order, timing each operation. Cancellation is checked between indices
// only. The store is flushed before Run returns, including on error, so the
// report always describes durable state.
func Run(ctx context.Context, acc Accumulator, cfg Config) (report *Report, err error) {
	if cfg.End < cfg.Start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrIndexRange, cfg.Start, cfg.End)
	}
	if cfg.CommitEvery == 0 {
		cfg.CommitEvery = DefaultCommitEvery
	}
	if cfg.Log == nil {
		cfg.Log = logger.Sugar.WithServiceName("bench")
	}

	r := &runner{acc: acc, cfg: cfg, rec: NewRecorder()}
	report = &Report{Engine: acc.Kind(), Start: cfg.Start, Next: cfg.Start, End: cfg.End}
	began := time.Now()

	defer func() {
		if flushErr := r.flush(); err == nil {
			err = flushErr
		}
		report.Elapsed = time.Since(began)
		report.Root = acc.Root()
		report.Size = acc.Size()
		report.Ops = r.rec.Summary()
		report.ProofBytes = r.proofBytes
	}()

	for i := cfg.Start; i < cfg.End; i++ {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		if err = r.step(i); err != nil {
			return report, err
		}
		report.Next = i + 1

		if cfg.BatchSize != 0 && uint64(len(r.batch)) == cfg.BatchSize {
			if err = r.proveBatch(); err != nil {
				return report, err
			}
		}
		if (report.Next-cfg.Start)%cfg.CommitEvery == 0 {
			if err = r.flush(); err != nil {
				return report, err
			}
			cfg.Log.Infof("elapsed %d millis, finished index: %d", time.Since(began).Milliseconds(), i)
		}
	}
	if len(r.batch) != 0 {
		if err = r.proveBatch(); err != nil {
			return report, err
		}
	}
	return report, nil
}

type runner struct {
	acc        Accumulator
	cfg        Config
	rec        *Recorder
	proofBytes uint64

	// inserted indices, and their payloads, awaiting a batch proof
	batch         []uint64
	batchPayloads [][]byte
}

func (r *runner) time(op Op, f func() error) error {
	start := time.Now()
	err := f()
	d := time.Since(start)
	r.rec.Record(op, d)
	r.cfg.Metrics.observe(r.acc.Kind(), op, d)
	return err
}

func (r *runner) step(i uint64) error {
	payload, err := r.cfg.Workload.Payload(i)
	if err != nil {
		return err
	}
	if err = r.time(OpInsert, func() error { return r.acc.Insert(i, payload) }); err != nil {
		return fmt.Errorf("insert %d: %w", i, err)
	}
	if r.cfg.BatchSize != 0 {
		r.batch = append(r.batch, i)
		r.batchPayloads = append(r.batchPayloads, payload)
	}
	if !r.cfg.Prove {
		return nil
	}

	var proof Proof
	err = r.time(OpProve, func() error {
		var err error
		proof, err = r.acc.Prove(i)
		return err
	})
	if err != nil {
		return fmt.Errorf("prove %d: %w", i, err)
	}

	root := r.acc.Root()
	var ok bool
	_ = r.time(OpVerify, func() error {
		ok = r.acc.Verify(root, i, payload, proof)
		return nil
	})
	if !ok {
		return fmt.Errorf("%w: %s index %d", ErrVerifyFailed, r.acc.Kind(), i)
	}

	encoded, err := proof.Encode(r.acc.Hasher())
	if err != nil {
		return err
	}
	r.addProofBytes(len(encoded))
	return nil
}

func (r *runner) proveBatch() error {
	indices, payloads := r.batch, r.batchPayloads
	r.batch, r.batchPayloads = nil, nil

	root := r.acc.Root()
	var proof BatchProof
	err := r.time(OpProveBatch, func() error {
		var err error
		proof, err = r.acc.ProveBatch(root, indices)
		return err
	})
	if err != nil {
		return fmt.Errorf("prove batch [%d, %d]: %w", indices[0], indices[len(indices)-1], err)
	}

	var ok bool
	_ = r.time(OpVerifyBatch, func() error {
		ok = r.acc.VerifyBatch(root, indices, payloads, proof)
		return nil
	})
	if !ok {
		return fmt.Errorf("%w: %s batch [%d, %d]", ErrVerifyFailed, r.acc.Kind(), indices[0], indices[len(indices)-1])
	}

	encoded, err := proof.Encode()
	if err != nil {
		return err
	}
	r.addProofBytes(len(encoded))
	return nil
}

func (r *runner) addProofBytes(n int) {
	r.proofBytes += uint64(n)
	r.cfg.Metrics.observeProofSize(r.acc.Kind(), n)
}

func (r *runner) flush() error {
	if r.cfg.Flusher == nil {
		return nil
	}
	return r.time(OpFlush, r.cfg.Flusher.Flush)
}
