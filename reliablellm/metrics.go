package reliablellm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes recorded by Metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid_output"
)

// Metrics holds the Prometheus collectors updated by a Client.
type Metrics struct {
	// BackendAttempts counts backend attempts by outcome.
	BackendAttempts *prometheus.CounterVec

	// BackendLatency tracks call latency for backends that were available.
	BackendLatency *prometheus.HistogramVec

	// RequestsFailed counts requests that exhausted every backend.
	RequestsFailed *prometheus.CounterVec
}

// NewMetrics registers the client collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		BackendAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_backend_attempts_total",
				Help: "Total number of backend attempts",
			},
			[]string{"backend", "op", "outcome"},
		),
		BackendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_backend_latency_seconds",
				Help:    "Backend call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
		RequestsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_failed_total",
				Help: "Total number of requests where every backend failed",
			},
			[]string{"op"},
		),
	}
}

func (m *Metrics) observeAttempt(backend, op, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.BackendAttempts.WithLabelValues(backend, op, outcome).Inc()
	if outcome != OutcomeUnavailable {
		m.BackendLatency.WithLabelValues(backend, op).Observe(latency.Seconds())
	}
}

func (m *Metrics) observeFailure(op string) {
	if m == nil {
		return
	}
	m.RequestsFailed.WithLabelValues(op).Inc()
}
