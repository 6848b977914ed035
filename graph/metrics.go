package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes recorded by Metrics.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics instruments the resolver. A nil *Metrics records nothing.
type Metrics struct {
	fetches     *prometheus.CounterVec
	latency     prometheus.Histogram
	brokenEdges prometheus.Counter
	resolutions *prometheus.CounterVec
}

// NewMetrics creates the resolver metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regscan",
			Subsystem: "resolver",
			Name:      "fetches_total",
			Help:      "Catalog fetches performed during resolution, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "regscan",
			Subsystem: "resolver",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of catalog fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		brokenEdges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regscan",
			Subsystem: "resolver",
			Name:      "broken_edges_total",
			Help:      "Dependency edges whose target could not be fetched.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regscan",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Resolve calls, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.latency, m.brokenEdges, m.resolutions)
	}
	return m
}

func (m *Metrics) observeFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) brokenEdge() {
	if m == nil {
		return
	}
	m.brokenEdges.Inc()
}

func (m *Metrics) resolution(result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result).Inc()
}
