package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athenaq_queries_total",
			Help: "Total number of queries by backend and terminal state.",
		},
		[]string{"backend", "state"},
	)

	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athenaq_query_duration_seconds",
			Help:    "Wall-clock time from submit to terminal state.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"backend", "state"},
	)

	queryPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athenaq_query_polls",
			Help:    "Number of status polls issued per query.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athenaq_cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"result"},
	)

	cacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athenaq_cache_writes_total",
			Help: "Result cache writes by outcome.",
		},
		[]string{"result"},
	)

	resultBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenaq_result_bytes_total",
			Help: "Bytes of result data fetched from object storage.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		queryPolls,
		cacheLookupsTotal,
		cacheWritesTotal,
		resultBytesTotal,
	)
}

func ObserveQuery(backend, state string, elapsed time.Duration, polls int) {
	if backend == "" {
		backend = "unknown"
	}
	queriesTotal.WithLabelValues(backend, state).Inc()
	queryDurationSeconds.WithLabelValues(backend, state).Observe(elapsed.Seconds())
	if polls > 0 {
		queryPolls.Observe(float64(polls))
	}
}

func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

func ObserveCacheWrite(err error) {
	if err != nil {
		cacheWritesTotal.WithLabelValues("error").Inc()
		return
	}
	cacheWritesTotal.WithLabelValues("ok").Inc()
}

func AddResultBytes(n int) {
	if n > 0 {
		resultBytesTotal.Add(float64(n))
	}
}
