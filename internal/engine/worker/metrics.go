package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// workerMetrics holds Prometheus metrics for request handling.
type workerMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newWorkerMetrics creates and registers worker metrics. A nil registerer disables metrics.
func newWorkerMetrics(reg prometheus.Registerer) (*workerMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &workerMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernelproxy",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Total number of handled requests",
		}, []string{"kind", "outcome"}), // kind: kernel, reserved; outcome: ok, error
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kernelproxy",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Request handling duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		}, []string{"kind"}),
	}

	if err := reg.Register(m.requests); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *workerMetrics) observe(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}
