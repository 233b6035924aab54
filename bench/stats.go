package bench

import (
	"sort"
	"time"
)

// Op names a timed operation.
type Op string

const (
	OpInsert      Op = "insert"
	OpProve       Op = "prove"
	OpVerify      Op = "verify"
	OpProveBatch  Op = "prove_batch"
	OpVerifyBatch Op = "verify_batch"
	OpFlush       Op = "flush"
)

// Ops lists the operations in report order.
var Ops = []Op{OpInsert, OpProve, OpVerify, OpProveBatch, OpVerifyBatch, OpFlush}

// Stats summarizes the samples recorded for one operation.
type Stats struct {
	Op        Op
	Count     int
	Total     time.Duration
	Mean      time.Duration
	Min       time.Duration
	Max       time.Duration
	P50       time.Duration
	P90       time.Duration
	P99       time.Duration
	OpsPerSec float64
}

// Recorder keeps every sample so percentiles are exact.
type Recorder struct {
	samples map[Op][]time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{samples: make(map[Op][]time.Duration)}
}

func (r *Recorder) Record(op Op, d time.Duration) {
	r.samples[op] = append(r.samples[op], d)
}

func (r *Recorder) Count(op Op) int { return len(r.samples[op]) }

// Summary returns Stats for each operation that has samples, in Ops order.
func (r *Recorder) Summary() []Stats {
	var out []Stats
	for _, op := range Ops {
		if len(r.samples[op]) == 0 {
			continue
		}
		out = append(out, Summarize(op, r.samples[op]))
	}
	return out
}

// Summarize computes Stats over samples. Percentiles use the nearest rank
// method. samples is not modified.
func Summarize(op Op, samples []time.Duration) Stats {
	st := Stats{Op: op, Count: len(samples)}
	if st.Count == 0 {
		return st
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, d := range sorted {
		st.Total += d
	}
	st.Mean = st.Total / time.Duration(st.Count)
	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.P50 = percentile(sorted, 50)
	st.P90 = percentile(sorted, 90)
	st.P99 = percentile(sorted, 99)
	if st.Total > 0 {
		st.OpsPerSec = float64(st.Count) / st.Total.Seconds()
	}
	return st
}

func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
