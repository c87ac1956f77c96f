package webhooks

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	hookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollhooks_deliveries_total",
		Help: "Total webhook delivery attempts by result.",
	}, []string{"result"})

	hookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollhooks_delivery_duration_seconds",
		Help:    "Outbound delivery duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	hookBreakersOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enrollhooks_breakers_open",
		Help: "Number of webhooks whose circuit breaker is currently open.",
	})

	hookRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollhooks_retries_total",
		Help: "Total delivery retries driven by the sweeper.",
	})

	hookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollhooks_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	hookRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrollhooks_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// recordDeliveryMetric updates the Prometheus view of one delivery attempt.
func recordDeliveryMetric(result DeliveryResult, latency time.Duration) {
	hookDeliveriesTotal.WithLabelValues(string(result)).Inc()
	if result == ResultDelivered || result == ResultFailed {
		hookDeliveryDuration.Observe(latency.Seconds())
	}
}

// RecordRetry counts a sweeper-driven redelivery.
func RecordRetry() {
	hookRetriesTotal.Inc()
}

// SetOpenBreakers publishes the open-breaker gauge.
func SetOpenBreakers(n int) {
	hookBreakersOpen.Set(float64(n))
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		hookRequestsTotal.WithLabelValues(method, path, status).Inc()
		hookRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
