package normalizer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type normalizerMetrics struct {
	framesReceived  prometheus.Counter
	framesDropped   prometheus.Counter
	framesDeduped   prometheus.Counter
	eventsPublished *prometheus.CounterVec
}

var (
	normalizerMetricsOnce sync.Once
	normalizerMetricsInst *normalizerMetrics
)

func globalNormalizerMetrics() *normalizerMetrics {
	normalizerMetricsOnce.Do(func() {
		normalizerMetricsInst = newNormalizerMetrics()
	})
	return normalizerMetricsInst
}

func newNormalizerMetrics() *normalizerMetrics {
	return &normalizerMetrics{
		framesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "frames_received_total",
			Help:      "Raw frames received from upstream sockets",
		}),
		framesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because they failed to parse",
		}),
		framesDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "frames_deduped_total",
			Help:      "Frames suppressed by the dedup window",
		}),
		eventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "relay",
			Name:      "events_published_total",
			Help:      "Domain events published to the bus, labeled by type",
		}, []string{"type"}),
	}
}
