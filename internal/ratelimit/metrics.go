package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limit decisions.
var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiergate",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"profile", "outcome"},
	)
)

func recordDecision(profile string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	decisionsTotal.WithLabelValues(profile, outcome).Inc()
}
