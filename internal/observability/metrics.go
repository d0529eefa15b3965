package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters and gauges the prefetcher and cache
// update as they run: the Prefetcher sets WorkerPoolSize and the Cache
// counts CacheHits and CacheMisses. QueueDepth and PrefetchBatchSecs
// are registered but nothing in this module updates them. NewMetrics
// registers one set against a caller-supplied registry, and one set
// may be shared by a Prefetcher and a Cache (cmd/pepperstats does so);
// the driver decides whether (and how) to expose that registry over
// HTTP, since serving metrics is an outer-surface concern the engine
// itself stays agnostic to.
type Metrics struct {
	QueueDepth        *prometheus.GaugeVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	PrefetchBatchSecs prometheus.Histogram
	WorkerPoolSize    *prometheus.GaugeVec
}

// NewMetrics creates and registers a Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pepperstats",
			Name:      "queue_depth",
			Help:      "Number of pending+in-progress keys per job queue.",
		}, []string{"queue"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pepperstats",
			Name:      "cache_hits_total",
			Help:      "Revisions served from the on-disk cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pepperstats",
			Name:      "cache_misses_total",
			Help:      "Revisions delegated to the wrapped backend.",
		}),
		PrefetchBatchSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pepperstats",
			Name:      "prefetch_batch_duration_seconds",
			Help:      "Wall time of one metadata worker batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		WorkerPoolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pepperstats",
			Name:      "worker_pool_size",
			Help:      "Configured worker count per pool.",
		}, []string{"pool"}),
	}
	reg.MustRegister(m.QueueDepth, m.CacheHits, m.CacheMisses, m.PrefetchBatchSecs, m.WorkerPoolSize)
	return m
}
