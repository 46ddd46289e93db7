package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "civicconnect"

var (
	Refetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refetches_total",
			Help:      "Number of view refreshes run by controllers.",
		},
		[]string{"controller"},
	)
	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Number of failed collection fetches.",
		},
		[]string{"collection"},
	)
	ChangesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_received_total",
			Help:      "Number of change notifications delivered per table.",
		},
		[]string{"table"},
	)
	SubscriptionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscription_state",
			Help:      "Change subscription state per table (0 idle, 1 subscribing, 2 subscribed, 3 error).",
		},
		[]string{"table"},
	)
	SubscriptionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_failures_total",
			Help:      "Number of change subscriptions that ended in a terminal status.",
		},
		[]string{"table", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		Refetches,
		FetchFailures,
		ChangesReceived,
		SubscriptionState,
		SubscriptionFailures,
		HTTPRequestDuration,
	)
}

func Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
