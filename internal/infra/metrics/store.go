package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		storeWritesTotal,
		storePrunedTotal,
		writeQueueDepth,
		cacheRequestsTotal,
	)
}

var (
	storeWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Store write operations by op (save/title/delete) and result.",
		},
		[]string{"op", "result"},
	)

	storePrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_pruned_sessions_total",
			Help: "Sessions removed by the retention sweeper.",
		},
	)

	writeQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_write_queue_depth",
			Help: "Writes waiting in the write-behind queue.",
		},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="session", result="hit"
	)
)

func IncStoreWrite(op, result string) {
	storeWritesTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

func AddPrunedSessions(n int64) { storePrunedTotal.Add(float64(n)) }

func SetWriteQueueDepth(n int) { writeQueueDepth.Set(float64(n)) }

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}
