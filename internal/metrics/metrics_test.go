package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordOrder("BUY", "MARKET", "EXECUTED")
	m.ObserveLockWait(time.Millisecond, true)
	m.RecordQuote("yahoo", "fresh")
	m.ObserveScan(time.Second, 3)
	m.RecordInconsistency()
	m.ObserveRequest("/x", http.MethodGet, 200, time.Millisecond)
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordOrder("BUY", "MARKET", "EXECUTED")
	m.RecordOrder("BUY", "MARKET", "EXECUTED")
	m.RecordOrder("SELL", "LIMIT", "PENDING")
	if got := testutil.ToFloat64(m.orderCount.WithLabelValues("BUY", "MARKET", "EXECUTED")); got != 2 {
		t.Errorf("orders_total{BUY,MARKET,EXECUTED} = %v, want 2", got)
	}

	m.ObserveLockWait(10*time.Millisecond, true)
	m.ObserveLockWait(time.Millisecond, false)
	if got := testutil.ToFloat64(m.lockTimeouts); got != 1 {
		t.Errorf("lock timeouts = %v, want 1", got)
	}

	m.ObserveScan(time.Second, 4)
	if got := testutil.ToFloat64(m.scanExecuted); got != 4 {
		t.Errorf("scan executed = %v, want 4", got)
	}
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `papertrade_http_requests_total{handler="/ping",method="GET",status="200"} 1`) {
		t.Errorf("expected /ping request counter in exposition, got:\n%s", rec.Body.String())
	}
}
