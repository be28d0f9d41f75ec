// Package metrics provides Prometheus instrumentation for the escrow engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts accepted bets by predicted outcome.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_bets_total",
		Help: "Total number of accepted bets",
	}, []string{"prediction"})

	// StakedUnits accumulates base units moved into custody by bets.
	StakedUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_staked_units_total",
		Help: "Base units staked into pool custody",
	}, []string{"prediction"})

	// ClaimsTotal counts settled claims by the pool status they were paid from.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_claims_total",
		Help: "Total number of processed claims",
	}, []string{"status"})

	// PayoutUnits accumulates base units paid out of custody by claims.
	PayoutUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_escrow_payout_units_total",
		Help: "Base units paid from pool custody",
	})

	// Transitions counts pool lifecycle transitions by target status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_pool_transitions_total",
		Help: "Pool lifecycle transitions",
	}, []string{"status"})

	// Rejections counts failed operations by operation and error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_rejections_total",
		Help: "Operations rejected by the engine",
	}, []string{"op", "kind"})

	// OperationLatency tracks engine operation latency in seconds.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_escrow_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_escrow_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// EventPublishFailures counts events a sink failed to accept.
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_event_publish_failures_total",
		Help: "Lifecycle events that failed to publish",
	}, []string{"type"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escrow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_escrow_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOp records the latency of one engine operation started at start.
func ObserveOp(op string, start time.Time) {
	OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// Route pattern keeps match ids out of the label set.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack hands the connection to protocol upgraders such as WebSocket.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T cannot be hijacked", w.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}
