package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photobooth"

type metrics struct {
	registry    *prometheus.Registry
	composed    *prometheus.CounterVec
	duration    prometheus.Histogram
	inFlight    prometheus.Gauge
	rateLimited prometheus.Counter
	stored      *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		composed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compose_total",
			Help:      "Total number of compositions by result kind",
		}, []string{"kind"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compose_duration_seconds",
			Help:      "Duration of the composition pipeline in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compose_in_flight",
			Help:      "Number of compositions currently running",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of uploads rejected by the rate limiter",
		}),
		stored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of content store operations by operation and result",
		}, []string{"operation", "result"}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *metrics) store(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stored.WithLabelValues(op, result).Inc()
}
