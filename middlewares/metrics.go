package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	subscriptions *prometheus.CounterVec
}

// NewMetrics registers the HTTP and subscription collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventsapi",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventsapi",
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventsapi",
			Name:      "subscriptions_total",
			Help:      "Subscription attempts by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requests, m.duration, m.subscriptions)
	return m
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveSubscription counts a POST /subscribe outcome ("created", "duplicate", ...).
func (m *Metrics) ObserveSubscription(outcome string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(outcome).Inc()
}
