package validation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the batcher.
type Metrics struct {
	chunks    *prometheus.CounterVec
	cacheHits prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the validation metrics against the provided
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
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbridge_validation_chunks_total",
		Help: "Serial validation chunks by outcome.",
	}, []string{"outcome"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockbridge_validation_cache_hits_total",
		Help: "Serials resolved from the lookup cache without a remote call.",
	})
	registerer.MustRegister(chunks, cacheHits)
	return &Metrics{chunks: chunks, cacheHits: cacheHits}
}

// Chunk counts one finished chunk.
func (m *Metrics) Chunk(outcome string) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(outcome).Inc()
}

// CacheHits counts serials served from the cache.
func (m *Metrics) CacheHits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheHits.Add(float64(n))
}
