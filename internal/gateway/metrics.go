package gateway

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type gatewayMetrics struct {
	connectedClients prometheus.Gauge
	broadcasts       *prometheus.CounterVec
	droppedClients   prometheus.Counter
}

var (
	gatewayMetricsOnce sync.Once
	gatewayMetricsInst *gatewayMetrics
)

func globalGatewayMetrics() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayMetricsInst = newGatewayMetrics()
	})
	return gatewayMetricsInst
}

func newGatewayMetrics() *gatewayMetrics {
	return &gatewayMetrics{
		connectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchat",
			Subsystem: "gateway",
			Name:      "connected_clients",
			Help:      "Currently connected dashboard clients",
		}),
		broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "gateway",
			Name:      "broadcasts_total",
			Help:      "Room broadcasts, labeled by room kind",
		}, []string{"room"}),
		droppedClients: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "gateway",
			Name:      "dropped_clients_total",
			Help:      "Clients dropped for not draining their send buffer",
		}),
	}
}
