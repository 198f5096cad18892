// Package metrics exposes Prometheus collectors for the XP engine, the daily
// check and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lg/fitquest-api/internal/xp"
)

// Collectors implements xp.Observer and dailycheck.Observer.
type Collectors struct {
	registry *prometheus.Registry

	xpApplied      *prometheus.CounterVec
	levelUps       prometheus.Counter
	txRetries      prometheus.Counter
	txExhausted    prometheus.Counter
	dailyChecks    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	realtimeClient prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	m := &Collectors{
		registry: reg,
		xpApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitquest_xp_changes_total",
			Help: "Committed XP changes by event.",
		}, []string{"event"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitquest_level_ups_total",
			Help: "XP changes that raised a user's level.",
		}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitquest_xp_tx_retries_total",
			Help: "Profile transactions retried after a conflict.",
		}),
		txExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitquest_xp_tx_exhausted_total",
			Help: "XP changes abandoned after the retry limit.",
		}),
		dailyChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitquest_daily_checks_total",
			Help: "Daily goal checks by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitquest_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fitquest_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		realtimeClient: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fitquest_realtime_clients",
			Help: "Connected websocket clients.",
		}),
	}
	reg.MustRegister(
		m.xpApplied, m.levelUps, m.txRetries, m.txExhausted, m.dailyChecks,
		m.httpRequests, m.httpLatency, m.realtimeClient,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Collectors) Registry() *prometheus.Registry { return m.registry }

func (m *Collectors) XPApplied(event xp.Event, _ int, levelledUp bool) {
	m.xpApplied.WithLabelValues(string(event)).Inc()
	if levelledUp {
		m.levelUps.Inc()
	}
}

func (m *Collectors) TxRetried()   { m.txRetries.Inc() }
func (m *Collectors) TxExhausted() { m.txExhausted.Inc() }

func (m *Collectors) DailyCheckCompleted(outcome string) {
	m.dailyChecks.WithLabelValues(outcome).Inc()
}

func (m *Collectors) ClientConnected()    { m.realtimeClient.Inc() }
func (m *Collectors) ClientDisconnected() { m.realtimeClient.Dec() }

// Middleware records request counts and latency per route template.
func (m *Collectors) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
