package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	spRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundpuff_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	spRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "soundpuff_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	spSignupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundpuff_signups_total",
		Help: "Total signup attempts by result.",
	}, []string{"result"})

	spLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundpuff_logins_total",
		Help: "Total login attempts by result.",
	}, []string{"result"})

	spRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundpuff_token_refreshes_total",
		Help: "Total refresh-token rotations by result.",
	}, []string{"result"})
)

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

		spRequestsTotal.WithLabelValues(method, path, status).Inc()
		spRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func recordSignup(success bool) {
	spSignupsTotal.WithLabelValues(resultLabel(success)).Inc()
}

func recordLogin(success bool) {
	spLoginsTotal.WithLabelValues(resultLabel(success)).Inc()
}

func recordRefresh(success bool) {
	spRefreshesTotal.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
