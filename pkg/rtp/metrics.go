package rtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig controls whether the session registers Prometheus
// collectors, grounded on the teacher's pkg/dialog/metrics.go
// MetricsConfig/enabled short-circuit pattern.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Subsystem string
}

// DefaultMetricsConfig returns metrics disabled by default; callers opt
// in explicitly, matching the teacher's `+build prometheus`-gated
// collector being constructed only when asked for.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: false, Namespace: "efflux", Subsystem: "rtp_session"}
}

// Metrics holds the Prometheus collectors a Session reports to.
// Grounded on pkg/dialog/metrics.go's MetricsCollector: Counter/Gauge/
// Histogram/CounterVec built with promauto and Namespace/Subsystem.
type Metrics struct {
	enabled bool

	packetsSent     prometheus.Counter
	packetsReceived prometheus.Counter
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	participants    prometheus.Gauge
	collisions      prometheus.Counter
	rtcpReportsSent prometheus.Counter
	eventsByKind    *prometheus.CounterVec
}

// NewMetrics constructs (and, if enabled, registers) the session's
// collectors. Disabled configs return a zero-cost no-op-safe Metrics
// whose methods check `enabled` before touching any collector.
func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return m
	}

	m.packetsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "packets_sent_total", Help: "RTP data packets sent.",
	})
	m.packetsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "packets_received_total", Help: "RTP data packets delivered to listeners.",
	})
	m.bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "bytes_sent_total", Help: "RTP payload bytes sent.",
	})
	m.bytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "bytes_received_total", Help: "RTP payload bytes received.",
	})
	m.participants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "participants", Help: "Tracked remote participants.",
	})
	m.collisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "ssrc_collisions_total", Help: "SSRC collisions resolved.",
	})
	m.rtcpReportsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "rtcp_reports_sent_total", Help: "Compound RTCP reports emitted.",
	})
	m.eventsByKind = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "events_total", Help: "Session events by kind.",
	}, []string{"kind"})

	return m
}

func (m *Metrics) DataSent(bytes int) {
	if !m.enabled {
		return
	}
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) DataReceived(bytes int) {
	if !m.enabled {
		return
	}
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
}

func (m *Metrics) SetParticipants(n int) {
	if !m.enabled {
		return
	}
	m.participants.Set(float64(n))
}

func (m *Metrics) CollisionResolved() {
	if !m.enabled {
		return
	}
	m.collisions.Inc()
}

func (m *Metrics) RtcpReportSent() {
	if !m.enabled {
		return
	}
	m.rtcpReportsSent.Inc()
}

func (m *Metrics) Event(kind string) {
	if !m.enabled {
		return
	}
	m.eventsByKind.WithLabelValues(kind).Inc()
}
