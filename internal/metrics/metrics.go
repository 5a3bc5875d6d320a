// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ReportRuns counts report executions by outcome (ok, error, timeout, rejected).
	ReportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_report_runs_total",
			Help: "Total report executions by outcome",
		},
		[]string{"outcome"},
	)

	// SandboxDuration observes wall time spent executing report code.
	SandboxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_sandbox_duration_seconds",
			Help:    "Sandbox execution time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"mode", "outcome"},
	)

	// SandboxFetches counts outbound fetch calls made by report code.
	SandboxFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_sandbox_fetch_total",
			Help: "Outbound fetch calls from report code by result",
		},
		[]string{"result"},
	)

	// LLMRequests counts model calls by operation and outcome.
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_llm_requests_total",
			Help: "LLM calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// LLMDuration observes model latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_llm_duration_seconds",
			Help:    "LLM call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		},
		[]string{"operation"},
	)

	// TokenRefreshes counts OAuth refresh attempts by provider and outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_token_refresh_total",
			Help: "OAuth token refreshes by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// Handler serves the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
