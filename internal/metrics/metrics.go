// Package metrics provides Prometheus instrumentation for the vault engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

var (
	// OperationsTotal counts committed engine operations by kind and side.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_operations_total",
		Help: "Committed vault operations",
	}, []string{"kind", "side"})

	// RejectionsTotal counts failed operations by kind and error kind.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_rejections_total",
		Help: "Rejected vault operations",
	}, []string{"kind", "error_kind"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_operation_latency_seconds",
		Help:    "Vault operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// OpenPositions tracks the number of open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_open_positions",
		Help: "Number of currently open positions",
	})

	// PoolAmount and friends are in whole units of the asset.
	PoolAmount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_pool_amount",
		Help: "Pool liquidity per asset in whole units",
	}, []string{"asset"})

	ReservedAmount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_reserved_amount",
		Help: "Units reserved for open positions per asset",
	}, []string{"asset"})

	FeeReserves = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_fee_reserves",
		Help: "Accumulated fees per asset in whole units",
	}, []string{"asset"})

	GuaranteedUsd = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_guaranteed_usd",
		Help: "Size minus collateral across open longs, USD",
	}, []string{"asset"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveOperation records the outcome of one engine call started at start.
func ObserveOperation(kind model.EntryKind, isLong bool, start time.Time, err error) {
	OperationLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		RejectionsTotal.WithLabelValues(string(kind), model.KindOf(err).String()).Inc()
		return
	}
	OperationsTotal.WithLabelValues(string(kind), model.Side(isLong)).Inc()
}

// RecordPools refreshes the pool gauges. decimals maps asset to its unit
// decimals.
func RecordPools(pools []model.PoolEntry, decimals map[string]uint8) {
	for _, p := range pools {
		d := int32(decimals[p.Asset])
		PoolAmount.WithLabelValues(p.Asset).Set(p.PoolAmount.Decimal(d).InexactFloat64())
		ReservedAmount.WithLabelValues(p.Asset).Set(p.ReservedAmount.Decimal(d).InexactFloat64())
		FeeReserves.WithLabelValues(p.Asset).Set(p.FeeReserves.Decimal(d).InexactFloat64())
		GuaranteedUsd.WithLabelValues(p.Asset).Set(p.GuaranteedUsd.Decimal(fixed.USDDecimals).InexactFloat64())
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps account and asset values out of the labels.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
