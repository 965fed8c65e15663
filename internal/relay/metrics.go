package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type relayMetrics struct {
	connectAttempts *prometheus.CounterVec
	openConnections prometheus.Gauge
	reconnects      prometheus.Counter
	exhausted       prometheus.Counter
}

var (
	relayMetricsOnce sync.Once
	relayMetricsInst *relayMetrics
)

func globalRelayMetrics() *relayMetrics {
	relayMetricsOnce.Do(func() {
		relayMetricsInst = newRelayMetrics()
	})
	return relayMetricsInst
}

func newRelayMetrics() *relayMetrics {
	return &relayMetrics{
		connectAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "connect_attempts_total",
			Help:      "Upstream connection attempts, labeled by result",
		}, []string{"result"}),
		openConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "open_connections",
			Help:      "Currently open upstream connections",
		}),
		reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after socket loss",
		}),
		exhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "reconnects_exhausted_total",
			Help:      "Accounts left disconnected after exhausting reconnect attempts",
		}),
	}
}

func (m *relayMetrics) recordConnect(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.connectAttempts.WithLabelValues(result).Inc()
	if success {
		m.openConnections.Inc()
	}
}

func (m *relayMetrics) recordClosed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}
