// Package metrics provides Prometheus instrumentation for the wagering engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts accepted bets.
	BetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desports_bets_total",
		Help: "Total number of accepted bets",
	})

	// StakeVolume accumulates accepted stake amounts in tokens.
	StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desports_stake_volume_total",
		Help: "Cumulative accepted stake volume in tokens",
	})

	// ClaimsTotal counts successful payout claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desports_claims_total",
		Help: "Total number of successful claims",
	})

	// PayoutVolume accumulates claimed payout amounts in tokens.
	PayoutVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desports_payout_volume_total",
		Help: "Cumulative claimed payout volume in tokens",
	})

	// DepositsTotal counts bridge deposits, partitioned by channel.
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desports_deposits_total",
		Help: "Total number of bridge deposits",
	}, []string{"channel"})

	// WithdrawalsConfirmed counts admin-confirmed withdrawals.
	WithdrawalsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desports_withdrawals_confirmed_total",
		Help: "Total number of confirmed withdrawals",
	})

	// LiquidityRejections counts bets rejected by the solvency check.
	LiquidityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desports_liquidity_rejections_total",
		Help: "Bets rejected by the solvency check",
	})

	// OpenUnions tracks unions created and not yet resolved.
	OpenUnions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desports_open_unions",
		Help: "Number of unresolved unions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desports_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desports_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "desports_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

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

		// Use the raw path for the label to avoid a chi route-context
		// dependency; cardinality is bounded by the API surface.
		path := r.URL.Path
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
