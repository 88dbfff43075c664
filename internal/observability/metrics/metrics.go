package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures metric const labels.
type Config struct {
	ServiceName string
	Environment string
}

// HTTPMetrics exposes request-level instruments.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP instruments on the default registry.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "croplytics"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "croplytics_http_requests_total",
		Help:        "HTTP requests by route, method and status.",
		ConstLabels: constLabels,
	}, []string{"route", "method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "croplytics_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"route", "method"})

	prometheus.DefaultRegisterer.MustRegister(requests, duration)

	return &HTTPMetrics{requests: requests, duration: duration}
}

// GinMiddleware records request counts and latency per route.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.requests.WithLabelValues(route, method, status).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the prometheus scrape endpoint handler.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
