package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store tiers
	StoreTierOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_tier_operations_total",
			Help: "Record store operations per tier and outcome",
		},
		[]string{"tier", "op", "result"}, // result: "ok", "miss", "error"
	)

	StoreUnavailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_unavailable_total",
			Help: "Operations that failed on every tier",
		},
		[]string{"op"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_breaker_state",
			Help: "Circuit breaker state per tier (0=closed, 1=half-open, 2=open)",
		},
		[]string{"tier"},
	)

	// Subscriptions
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Currently active live subscriptions",
		},
	)

	SubscriptionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_events_total",
			Help: "Change events delivered or dropped by subscriptions",
		},
		[]string{"result"}, // "delivered", "dropped"
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Open live view connections",
		},
	)

	// Background work
	DomainEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_total",
			Help: "Domain events published or handled",
		},
		[]string{"type", "stage", "result"}, // stage: "publish", "handle"
	)

	WorkerTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Duration of worker pool tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RecordTierOperation(tier, op, result string) {
	StoreTierOperations.WithLabelValues(tier, op, result).Inc()
}

func ObserveTask(task string, start time.Time) {
	WorkerTaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}
