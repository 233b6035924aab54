package bench

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports operation latencies. A nil *Metrics records nothing.
type Metrics struct {
	duration   *prometheus.HistogramVec
	proofBytes *prometheus.HistogramVec
}

// NewMetrics registers the harness collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "merklebench",
			Name:      "operation_duration_seconds",
			Help:      "Duration of accumulator operations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"engine", "op"}),
		proofBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "merklebench",
			Name:      "proof_size_bytes",
			Help:      "Encoded size of generated proofs",
			Buckets:   prometheus.LinearBuckets(64, 128, 10),
		}, []string{"engine"}),
	}
}

func (m *Metrics) observe(engine Kind, op Op, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(string(engine), string(op)).Observe(d.Seconds())
}

func (m *Metrics) observeProofSize(engine Kind, n int) {
	if m == nil {
		return
	}
	m.proofBytes.WithLabelValues(string(engine)).Observe(float64(n))
}
