package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neogate_orders_total",
		Help: "Order submissions by outcome",
	}, []string{"outcome", "side"})

	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neogate_auth_attempts_total",
		Help: "Handshake calls by phase and result",
	}, []string{"phase", "result"})

	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neogate_retries_total",
		Help: "Retried upstream calls by phase",
	}, []string{"phase"})

	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neogate_risk_rejects_total",
		Help: "Orders stopped by pre-trade limits, by reason",
	}, []string{"reason"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neogate_upstream_latency_seconds",
		Help:    "Upstream broker call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neogate_latency_bucket",
		Help:    "Gateway request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neogate_http_requests_total",
		Help: "Gateway requests by route and status class",
	}, []string{"endpoint", "method", "status"})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neogate_audit_dropped_total",
		Help: "Audit entries dropped because the queue was full",
	})
)
