// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for relay telemetry, kept on a private registry.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "wsrelay"

// HandshakeOK labels a successful handshake.
const HandshakeOK = "ok"

// Metrics holds the relay collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	accepted    prometheus.Counter
	handshakes  *prometheus.CounterVec
	relayErrors *prometheus.CounterVec
	active      prometheus.Gauge
	bytes       *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Inbound TCP connections accepted.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "WebSocket upgrade handshakes by result.",
		}, []string{"result"}),
		relayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Relay sessions that ended with an error, by kind.",
		}, []string{"kind"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Relay sessions currently moving bytes.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes relayed, by direction.",
		}, []string{"direction"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of finished relay sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.accepted, m.handshakes, m.relayErrors, m.active, m.bytes, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

// Handshake records a handshake outcome: HandshakeOK or an error kind name.
func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) RelayError(kind string) {
	if m == nil {
		return
	}
	m.relayErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// SessionEnded records traffic and lifetime of a session that had started relaying.
func (m *Metrics) SessionEnded(up, down int64, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.bytes.WithLabelValues("up").Add(float64(up))
	m.bytes.WithLabelValues("down").Add(float64(down))
	m.duration.Observe(d.Seconds())
}
