// Package metrics records outbound request outcomes for the gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what the gateway needs from a metrics sink.
type Recorder interface {
	RecordRequest(method, outcome string, d time.Duration)
	RecordForcedLogout()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	forcedLogouts prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdesk_api_requests_total",
			Help: "Backend API requests by method and classified outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crewdesk_api_request_duration_seconds",
			Help:    "Backend API request latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crewdesk_forced_logouts_total",
			Help: "Session teardowns caused by a rejected credential.",
		}),
	}
	reg.MustRegister(c.requests, c.latency, c.forcedLogouts)
	return c
}

func (c *Collector) RecordRequest(method, outcome string, d time.Duration) {
	c.requests.WithLabelValues(method, outcome).Inc()
	c.latency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) RecordForcedLogout() {
	c.forcedLogouts.Inc()
}

// WriteTextfile dumps everything gathered by g in the text exposition format,
// suitable for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
