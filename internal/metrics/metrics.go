// Package metrics provides Prometheus instrumentation for the decision engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts processed ticks by outcome (decided, stale, no_quote, invalid...).
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_ticks_total",
		Help: "Price ticks processed, by outcome",
	}, []string{"outcome"})

	// DecisionsTotal counts decisions by firing rule and the side bought
	// ("none" for holds). Quantities go to SharesBought.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_decisions_total",
		Help: "Decisions produced, by rule and side",
	}, []string{"rule", "side"})

	// FillsTotal counts confirmed fills by side.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_fills_total",
		Help: "Confirmed fills recorded in the ledger",
	}, []string{"side"})

	// SharesBought accumulates filled quantity by side.
	SharesBought = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_shares_bought_total",
		Help: "Filled shares, by side",
	}, []string{"side"})

	// OrderRejections counts orders the sink refused or left unfilled.
	OrderRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updownbot_order_rejections_total",
		Help: "Orders rejected by the order sink",
	})

	// OrderLatency tracks order submission round trips.
	OrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updownbot_order_latency_seconds",
		Help:    "Order submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OpenMarkets tracks markets the engine is trading.
	OpenMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updownbot_open_markets",
		Help: "Markets currently open in the engine",
	})

	// SettlementsTotal counts settled markets by winner.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_settlements_total",
		Help: "Markets settled, by winning side",
	}, []string{"winner"})

	// RealizedPnL is the running total of settled PnL in USDC.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updownbot_realized_pnl_usdc",
		Help: "Cumulative realized PnL across settled markets",
	})

	// ConfigReloads counts hot reloads of the strategy tunables, by result.
	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_config_reloads_total",
		Help: "Config hot reloads, by result",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updownbot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "updownbot_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveFill records a confirmed fill.
func ObserveFill(side string, qty float64) {
	FillsTotal.WithLabelValues(side).Inc()
	SharesBought.WithLabelValues(side).Add(qty)
}

// ObserveSettlement records a settled market and the new running total.
func ObserveSettlement(winner string, totalPnL float64) {
	SettlementsTotal.WithLabelValues(winner).Inc()
	RealizedPnL.Set(totalPnL)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
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
