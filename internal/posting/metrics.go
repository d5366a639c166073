package posting

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the posting coordinator.
type Metrics struct {
	attempts        *prometheus.CounterVec
	reconciliations prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the posting metrics against the provided
// registerer. When the registerer is nil the default Prometheus
// registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbridge_posting_attempts_total",
		Help: "Posting attempts against the external system by outcome.",
	}, []string{"outcome"})
	reconciliations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockbridge_posting_reconciliations_total",
		Help: "Ambiguous postings resolved by finding the document remotely.",
	})
	registerer.MustRegister(attempts, reconciliations)
	return &Metrics{attempts: attempts, reconciliations: reconciliations}
}

// Attempt counts one finished attempt.
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Reconciled counts one adopted remote document.
func (m *Metrics) Reconciled() {
	if m == nil {
		return
	}
	m.reconciliations.Inc()
}
