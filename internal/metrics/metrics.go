// Package metrics exposes auth flow counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brokenomore"

// Collector records login flow metrics. It satisfies auth.MetricsRecorder.
type Collector struct {
	loginStarted    prometheus.Counter
	callbacks       *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	tokenRejected   *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_started_total",
			Help:      "Login URLs handed out.",
		}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callback_total",
			Help:      "OAuth callbacks by outcome.",
		}, []string{"result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oauth_upstream_latency_seconds",
			Help:      "Latency of identity provider requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		tokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_token_rejected_total",
			Help:      "Session tokens rejected by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.loginStarted,
		c.callbacks,
		c.upstreamLatency,
		c.tokenRejected,
	)

	return c
}

// NewRegistry returns a registry preloaded with Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (c *Collector) RecordLoginStarted() {
	c.loginStarted.Inc()
}

func (c *Collector) RecordCallback(result string) {
	c.callbacks.WithLabelValues(result).Inc()
}

func (c *Collector) RecordUpstreamLatency(endpoint string, d time.Duration) {
	c.upstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (c *Collector) RecordTokenRejected(reason string) {
	c.tokenRejected.WithLabelValues(reason).Inc()
}

// Handler serves the gathered metrics for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
