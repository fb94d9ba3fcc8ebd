package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pipeline outcomes for Prometheus scraping.
type Metrics struct {
	uploadsTotal     *prometheus.CounterVec
	rejectionsByRule *prometheus.CounterVec
	proveDuration    prometheus.Histogram
	bytesWritten     prometheus.Counter
	variantFailures  *prometheus.CounterVec
}

// NewMetrics registers pipeline metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production; a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filevet_uploads_total",
			Help: "Uploads processed, by namespace and outcome (accepted, rejected, failed).",
		}, []string{"namespace", "outcome"}),

		rejectionsByRule: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filevet_rejections_total",
			Help: "Rejected uploads by rule (size, spoof, structure, decode, policy).",
		}, []string{"rule"}),

		proveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "filevet_prove_duration_seconds",
			Help:    "Time spent in Strategy.Prove per upload.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "filevet_bytes_written_total",
			Help: "Canonical bytes persisted to stores, variants included.",
		}),

		variantFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filevet_variant_failures_total",
			Help: "Variant derivation failures by variant name.",
		}, []string{"variant"}),
	}
}

func (m *Metrics) observeOutcome(namespace, outcome string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(namespace, outcome).Inc()
}

func (m *Metrics) observeRejection(err error) {
	if m == nil {
		return
	}
	m.rejectionsByRule.WithLabelValues(rejectionRule(err)).Inc()
}

func (m *Metrics) observeProve(seconds float64) {
	if m == nil {
		return
	}
	m.proveDuration.Observe(seconds)
}

func (m *Metrics) observeBytes(n int64) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) observeVariantFailure(name string) {
	if m == nil {
		return
	}
	m.variantFailures.WithLabelValues(name).Inc()
}

// rejectionRule reuses the user-message codes as stable metric labels.
func rejectionRule(err error) string {
	return MapError(err).Code
}
