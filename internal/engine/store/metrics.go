package store

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics holds Prometheus metrics for the object store.
type storeMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions *prometheus.CounterVec
	entries   prometheus.Gauge
	used      prometheus.Gauge
}

// newStoreMetrics creates and registers store metrics. A nil registerer disables metrics.
func newStoreMetrics(reg prometheus.Registerer) (*storeMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kernelproxy",
			Subsystem: "store",
			Name:      "hits_total",
			Help:      "Total number of memoized operations served from the store",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kernelproxy",
			Subsystem: "store",
			Name:      "misses_total",
			Help:      "Total number of operations that had to be computed",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernelproxy",
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Total number of evicted entries",
		}, []string{"reason"}), // reason: delete, clear, invalid, replace
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kernelproxy",
			Subsystem: "store",
			Name:      "entries",
			Help:      "Current number of store entries",
		}),
		used: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kernelproxy",
			Subsystem: "store",
			Name:      "used_hashes",
			Help:      "Distinct fingerprints requested in the current run",
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.entries, m.used} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *storeMetrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *storeMetrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *storeMetrics) evicted(reason string) {
	if m != nil {
		m.evictions.WithLabelValues(reason).Inc()
	}
}

func (m *storeMetrics) size(entries, used int) {
	if m != nil {
		m.entries.Set(float64(entries))
		m.used.Set(float64(used))
	}
}
