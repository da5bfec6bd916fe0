// Package metrics exposes Prometheus collectors for the trading engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "papertrade"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	orderCount      *prometheus.CounterVec
	lockWait        prometheus.Histogram
	lockTimeouts    prometheus.Counter
	quoteCount      *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	scanExecuted    prometheus.Counter
	inconsistencies prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Use prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method", "status"},
		),
		requestCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		orderCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Orders by side, type and resulting status",
			},
			[]string{"side", "type", "status"},
		),
		lockWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "portfolio_lock_wait_seconds",
				Help:      "Time spent waiting for a portfolio lock",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		lockTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "portfolio_lock_timeouts_total",
				Help:      "Lock acquisitions that gave up after the bounded wait",
			},
		),
		quoteCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_requests_total",
				Help:      "Quote lookups by source and result",
			},
			[]string{"source", "result"},
		),
		scanDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trigger_scan_duration_seconds",
				Help:      "Duration of trigger scans",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		scanExecuted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_scan_executed_total",
				Help:      "Deferred orders executed by trigger scans",
			},
		),
		inconsistencies: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_inconsistencies_total",
				Help:      "Fills rolled back because the reconciliation check failed",
			},
		),
		gatherer: reg,
	}
}

// ObserveRequest records HTTP request metrics
func (m *Metrics) ObserveRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(handler, method, code).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(handler, method, code).Inc()
}

// RecordOrder counts an order reaching status.
func (m *Metrics) RecordOrder(side, orderType, status string) {
	if m == nil {
		return
	}
	m.orderCount.WithLabelValues(side, orderType, status).Inc()
}

// ObserveLockWait records how long a lock acquisition waited and whether it timed out.
func (m *Metrics) ObserveLockWait(wait time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.lockWait.Observe(wait.Seconds())
	if timedOut {
		m.lockTimeouts.Inc()
	}
}

// RecordQuote counts a quote lookup. result is one of fresh, cached, stale, error.
func (m *Metrics) RecordQuote(source, result string) {
	if m == nil {
		return
	}
	m.quoteCount.WithLabelValues(source, result).Inc()
}

// ObserveScan records a finished trigger scan.
func (m *Metrics) ObserveScan(duration time.Duration, executed int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(duration.Seconds())
	m.scanExecuted.Add(float64(executed))
}

// RecordInconsistency counts a rolled-back fill that failed reconciliation.
func (m *Metrics) RecordInconsistency() {
	if m == nil {
		return
	}
	m.inconsistencies.Inc()
}

// Middleware observes every request under its route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.ObserveRequest(handler, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
