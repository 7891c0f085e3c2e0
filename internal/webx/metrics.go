package webx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FetchMetrics counts page cache outcomes for a Fetcher. All fields are
// optional; a Fetcher without metrics simply does not record them.
type FetchMetrics struct {
	// CacheHits counts pages served from the on-disk cache.
	CacheHits prometheus.Counter

	// CacheMisses counts pages that required a network fetch.
	CacheMisses prometheus.Counter
}

// NewFetchMetrics registers the fetch instruments against reg.
func NewFetchMetrics(reg prometheus.Registerer) *FetchMetrics {
	factory := promauto.With(reg)

	return &FetchMetrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cagent",
			Subsystem: "web",
			Name:      "fetch_cache_hits_total",
			Help:      "Number of page fetches served from the disk cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cagent",
			Subsystem: "web",
			Name:      "fetch_cache_misses_total",
			Help:      "Number of page fetches that went to the network.",
		}),
	}
}
