package synchronizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one synchronizer.
type Metrics struct {
	rebuilds      prometheus.Counter
	events        *prometheus.CounterVec
	corpusSize    prometheus.Gauge
	viewSize      prometheus.Gauge
	queryDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notes_switcher",
			Name:      "index_rebuilds_total",
			Help:      "Full rebuilds of the search index.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notes_switcher",
			Name:      "sync_events_total",
			Help:      "Vault events handled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		corpusSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notes_switcher",
			Name:      "corpus_files",
			Help:      "Entries in the search file collection.",
		}),
		viewSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notes_switcher",
			Name:      "view_files",
			Help:      "Entries fed to the index after filtering.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notes_switcher",
			Name:      "query_duration_seconds",
			Help:      "Latency of index queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rebuilds, m.events, m.corpusSize, m.viewSize, m.queryDuration)
	}
	return m
}

func (m *Metrics) event(kind EventKind, applied bool) {
	outcome := "noop"
	if applied {
		outcome = "applied"
	}
	m.events.WithLabelValues(kind.String(), outcome).Inc()
}
