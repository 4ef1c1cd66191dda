package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics records request counts and latencies of one service
type HTTPMetrics struct {
	ServiceName string

	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	statusCategory  *prometheus.CounterVec
	workspaces      prometheus.Gauge
	workspaceEvicts prometheus.Counter
}

// NewHTTPMetrics creates the collectors of serviceName on their own registry
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	labels := prometheus.Labels{"service": serviceName}

	m := &HTTPMetrics{
		ServiceName: serviceName,
		registry:    prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		statusCategory: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_status_category_total",
				Help:        "Total number of responses by status category (2xx, 4xx, 5xx)",
				ConstLabels: labels,
			},
			[]string{"category", "method", "path"},
		),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "planboard_workspaces",
			Help:        "Session workspaces currently cached",
			ConstLabels: labels,
		}),
		workspaceEvicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "planboard_workspace_evictions_total",
			Help:        "Session workspaces dropped for idleness, capacity or logout",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.statusCategory,
		m.workspaces,
		m.workspaceEvicts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func statusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return ""
	}
}

// Middleware records every request. Unmatched routes share one path label.
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		statusStr := strconv.Itoa(status)

		m.requests.WithLabelValues(method, path, statusStr).Inc()
		if category := statusCategory(status); category != "" {
			m.statusCategory.WithLabelValues(category, method, path).Inc()
		}
		m.duration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())
	}
}

// WorkspaceOpened and WorkspaceClosed track the planning service cache
func (m *HTTPMetrics) WorkspaceOpened() {
	m.workspaces.Inc()
}

func (m *HTTPMetrics) WorkspaceClosed() {
	m.workspaces.Dec()
	m.workspaceEvicts.Inc()
}

// Handler exposes the service's collectors
func (m *HTTPMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register mounts the middleware and GET /metrics on r
func (m *HTTPMetrics) Register(r *gin.Engine) {
	r.Use(m.Middleware())
	r.GET("/metrics", gin.WrapH(m.Handler()))
}
