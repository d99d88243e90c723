package credential

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for credential operations.
type Metrics struct {
	issueTotal  *prometheus.CounterVec
	verifyTotal *prometheus.CounterVec
	registry    *prometheus.Registry
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetSharedMetrics returns the singleton Metrics instance.
func GetSharedMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = NewMetrics("tiergate")
	})
	return sharedMetrics
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tiergate"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.issueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "issue_total",
			Help:      "Total number of credential issuance attempts",
		},
		[]string{"status"},
	)

	m.verifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "verify_total",
			Help:      "Total number of credential verification attempts",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.issueTotal, m.verifyTotal)

	return m
}

// Registry returns the Prometheus registry holding these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) recordIssue(status string) {
	if m == nil {
		return
	}
	m.issueTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordVerify(status string) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(status).Inc()
}
