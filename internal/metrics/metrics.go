// Package metrics holds the Prometheus collectors. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Ledger mirror outcomes.
const (
	LedgerOK           = "ok"
	LedgerFailed       = "failed"
	LedgerUnauthorized = "unauthorized"
)

// Metrics groups the service collectors.
type Metrics struct {
	marked         *prometheus.CounterVec
	ledger         *prometheus.CounterVec
	visionFallback prometheus.Counter
	httpDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		marked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "attendance_marked_total",
			Help:      "Attendance records written, by status.",
		}, []string{"status"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "ledger_mirror_total",
			Help:      "Ledger mirror attempts, by outcome.",
		}, []string{"outcome"}),
		visionFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "vision_fallback_total",
			Help:      "Vision analyses answered with the stand-in result.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "presence",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(m.marked, m.ledger, m.visionFallback, m.httpDuration)
	return m
}

// AttendanceMarked counts one written record.
func (m *Metrics) AttendanceMarked(status string) {
	if m == nil {
		return
	}
	m.marked.WithLabelValues(status).Inc()
}

// LedgerMirror counts one ledger attempt.
func (m *Metrics) LedgerMirror(outcome string) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues(outcome).Inc()
}

// VisionFallback counts one stand-in answer.
func (m *Metrics) VisionFallback() {
	if m == nil {
		return
	}
	m.visionFallback.Inc()
}

// GinMiddleware observes request latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
