// Prometheus collectors exposed by Menuboard on /metrics.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcast channel metrics
var (
	// SSESubscribers tracks the current size of the in-process subscriber registry
	SSESubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menuboard_sse_subscribers_current",
			Help: "Current number of dashboard streams registered in this process",
		},
	)

	// SSESubscriptionsRejected counts stream requests refused because the registry was full
	SSESubscriptionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "menuboard_sse_subscriptions_rejected_total",
			Help: "Total dashboard streams rejected because the subscriber registry was full",
		},
	)

	// SSEEvictions counts subscribers removed from the registry by reason (stale, write_failed, unsubscribed, shutdown)
	SSEEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuboard_sse_evictions_total",
			Help: "Total subscribers removed from the registry by reason",
		},
		[]string{"reason"},
	)

	// SSEFrameWrites counts frame writes by frame kind (ping, notification) and status (ok, failed)
	SSEFrameWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuboard_sse_frame_writes_total",
			Help: "Total frame writes to subscribers by kind and status",
		},
		[]string{"kind", "status"},
	)

	// SSEFanOutDuration tracks how long one fan-out (publish or heartbeat) takes
	SSEFanOutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menuboard_sse_fanout_duration_seconds",
			Help:    "Duration of one fan-out over every subscriber in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"kind"},
	)
)

// Order notification metrics
var (
	// OrderNotificationsTotal counts publish requests by outcome (published, malformed, too_large, unauthorized)
	OrderNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuboard_order_notifications_total",
			Help: "Total order notification publish requests by outcome",
		},
		[]string{"outcome"},
	)
)

// Presence store metrics
var (
	// PresenceErrors counts failed Redis presence operations by operation
	PresenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuboard_presence_errors_total",
			Help: "Total failed Redis presence operations by operation",
		},
		[]string{"operation"},
	)
)
