// Package metrics defines the Prometheus collectors exposed by the
// resolver, grounded in the teacher's api/grpc/middleware registration
// pattern (CounterVec/HistogramVec, package-level metric names), but
// constructed against an explicit prometheus.Registry passed in rather than
// registered against the global default registry, so a test process can
// build more than one Metrics without collector-already-registered panics.
package metrics

import (
	"net"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the resolver's collectors. The transports, the connection
// pool and cmd/resolverd update QueriesTotal, PoolOccupancy,
// PoolEvictionsTotal, ACLRefusalsTotal and RateLimitRefusals;
// CacheHitsTotal, CacheMissesTotal, InFlightTransactions and
// ForwarderTimeouts are registered but nothing in this module updates them.
type Metrics struct {
	QueriesTotal        *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	InFlightTransactions prometheus.Gauge
	ForwarderTimeouts   *prometheus.CounterVec
	PoolOccupancy       *prometheus.GaugeVec
	PoolEvictionsTotal  *prometheus.CounterVec
	ACLRefusalsTotal    prometheus.Counter
	RateLimitRefusals   prometheus.Counter
}

// New builds a Metrics and registers every collector against reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwdresolver_queries_total",
			Help: "Total queries received, by transport protocol.",
		}, []string{"protocol"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdresolver_cache_hits_total",
			Help: "Total cache lookups that hit a fresh entry.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdresolver_cache_misses_total",
			Help: "Total cache lookups that missed or found a stale entry.",
		}),
		InFlightTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fwdresolver_inflight_transactions",
			Help: "Transactions currently awaiting an upstream response.",
		}),
		ForwarderTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwdresolver_forwarder_timeouts_total",
			Help: "Upstream forwarder round trips that exceeded the transaction timeout, by forwarder.",
		}, []string{"forwarder"}),
		PoolOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fwdresolver_connection_pool_occupancy",
			Help: "Live tracked connections per protocol in the worker pool.",
		}, []string{"protocol"}),
		PoolEvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwdresolver_connection_pool_evictions_total",
			Help: "Connections evicted from the worker pool, by protocol.",
		}, []string{"protocol"}),
		ACLRefusalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdresolver_acl_refusals_total",
			Help: "Queries refused by access control.",
		}),
		RateLimitRefusals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdresolver_rate_limit_refusals_total",
			Help: "Queries refused by rate limiting.",
		}),
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.InFlightTransactions,
		m.ForwarderTimeouts,
		m.PoolOccupancy,
		m.PoolEvictionsTotal,
		m.ACLRefusalsTotal,
		m.RateLimitRefusals,
	)
	return m
}

// RecordQuery increments the per-protocol query counter.
func (m *Metrics) RecordQuery(protocol string) {
	m.QueriesTotal.WithLabelValues(protocol).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// RecordRefusal records a gate refusal for the client ip, tagging it to the
// ACL or rate-limit counter depending on which gate produced it.
func (m *Metrics) RecordRefusal(gate string, _ net.IP) {
	switch gate {
	case "acl":
		m.ACLRefusalsTotal.Inc()
	case "limiter":
		m.RateLimitRefusals.Inc()
	}
}
