package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/malbeclabs/solarfund/utils/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarfund_api_build_info",
			Help: "Build information of the Solarfund API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarfund_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarfund_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solarfund_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Wallet metrics
	WalletCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarfund_api_wallet_calls_total",
			Help: "Total number of wallet substrate calls",
		},
		[]string{"method", "status"},
	)

	WalletCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarfund_api_wallet_call_duration_seconds",
			Help:    "Duration of wallet substrate calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"method"},
	)

	// Campaign metrics
	ContributionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solarfund_api_contributions_total",
			Help: "Total number of accepted contributions",
		},
	)

	ContributedSatoshisTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solarfund_api_contributed_satoshis_total",
			Help: "Total satoshis contributed",
		},
	)

	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarfund_api_redemptions_total",
			Help: "Total number of redemption attempts that reached the wallet",
		},
		[]string{"outcome"}, // "redeemed", "mint_failed"
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarfund_api_payments_total",
			Help: "Total number of payment gate decisions",
		},
		[]string{"outcome"}, // "challenged", "accepted", "failed"
	)

	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarfund_api_persistence_failures_total",
			Help: "Total number of ledger load or save failures",
		},
		[]string{"op"},
	)

	// Energy metrics
	EnergyAnchorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solarfund_api_energy_anchors_total",
			Help: "Total number of energy readings anchored on chain",
		},
	)

	SensorRewardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarfund_api_sensor_rewards_total",
			Help: "Total number of sensor reward mint attempts",
		},
		[]string{"outcome"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordWalletCall records metrics for a wallet substrate call. The status
// label is the HTTP status the substrate answered with when known.
func RecordWalletCall(method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		var sc retry.StatusCoder
		if errors.As(err, &sc) && sc.StatusCode() > 0 {
			status = strconv.Itoa(sc.StatusCode())
		}
	}
	WalletCallsTotal.WithLabelValues(method, status).Inc()
	WalletCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordContribution records an accepted contribution.
func RecordContribution(amount int64) {
	ContributionsTotal.Inc()
	ContributedSatoshisTotal.Add(float64(amount))
}

func RecordRedemption(outcome string) {
	RedemptionsTotal.WithLabelValues(outcome).Inc()
}

func RecordPayment(outcome string) {
	PaymentsTotal.WithLabelValues(outcome).Inc()
}

func RecordPersistenceFailure(op string) {
	PersistenceFailuresTotal.WithLabelValues(op).Inc()
}

// RecordEnergyAnchor records an anchored reading. The device is not a label
// to keep cardinality bounded.
func RecordEnergyAnchor(string) {
	EnergyAnchorsTotal.Inc()
}

func RecordSensorReward(outcome string) {
	SensorRewardsTotal.WithLabelValues(outcome).Inc()
}
