package chats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type chatsMetrics struct {
	accountFetches *prometheus.CounterVec
	accessCache    *prometheus.CounterVec
}

var (
	chatsMetricsOnce sync.Once
	chatsMetricsInst *chatsMetrics
)

func globalChatsMetrics() *chatsMetrics {
	chatsMetricsOnce.Do(func() {
		chatsMetricsInst = newChatsMetrics()
	})
	return chatsMetricsInst
}

func newChatsMetrics() *chatsMetrics {
	return &chatsMetrics{
		accountFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "chats",
			Name:      "account_fetches_total",
			Help:      "Per-account dialog fetches inside aggregations, labeled by result",
		}, []string{"result"}),
		accessCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anchat",
			Subsystem: "chats",
			Name:      "access_cache_total",
			Help:      "Accessible-accounts cache lookups, labeled hit or miss",
		}, []string{"result"}),
	}
}
