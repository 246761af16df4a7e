// Package dnsmetrics exposes the Prometheus metrics this server publishes
// on its admin HTTP surface.
package dnsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks total queries processed, by mode and result code.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mydns_queries_total",
		Help: "Total number of DNS queries processed",
	}, []string{"mode", "qtype", "rcode"})

	// QueryDuration tracks end-to-end query processing time.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mydns_query_duration_seconds",
		Help:    "Histogram of query processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// CacheOperations tracks L1/L2 cache hits and misses.
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mydns_cache_operations_total",
		Help: "Total number of cache hits and misses",
	}, []string{"level", "result"})

	// UpstreamFailures tracks targets isolated by the upstream handler.
	UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mydns_upstream_failures_total",
		Help: "Total number of upstream targets isolated after a timeout",
	}, []string{"target"})

	// UpstreamReinstated tracks targets the background retry loop restored.
	UpstreamReinstated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mydns_upstream_reinstated_total",
		Help: "Total number of upstream targets reinstated by the health-retry loop",
	}, []string{"target"})

	// RecursionDepth observes how many self-recursions a query chain needed.
	RecursionDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mydns_recursion_depth",
		Help:    "Histogram of recursive_lookup self-recursion depth per query",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	})

	// ActiveGoroutines tracks in-flight query-handling goroutines.
	ActiveGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mydns_active_goroutines",
		Help: "Number of in-flight query-handling goroutines",
	})

	// BGPAnnounced indicates whether this node is announcing its anycast VIP.
	BGPAnnounced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mydns_bgp_announced",
		Help: "Binary indicator of BGP announcement status (1 = announcing, 0 = withdrawn)",
	})

	// ZoneRecords tracks how many records are currently loaded per zone.
	ZoneRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mydns_zone_records",
		Help: "Number of records currently loaded for a zone",
	}, []string{"origin"})
)
