// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Mint metrics
	MintEventsTotal   *prometheus.CounterVec
	MintedUnitsTotal  *prometheus.CounterVec
	MintTicksSkipped  prometheus.Counter
	MintLegRetries    *prometheus.CounterVec
	MintCycleDuration prometheus.Histogram

	// Claim metrics
	ClaimsTotal        *prometheus.CounterVec
	ClaimedUnitsTotal  prometheus.Counter
	ClaimsRateLimited  prometheus.Counter
	IdempotencyReplays prometheus.Counter
	ClaimDuration      prometheus.Histogram

	// Pool metrics
	PoolAvailable    prometheus.Gauge
	PoolReserved     prometheus.Gauge
	PoolTotalMinted  prometheus.Gauge
	PoolTotalClaimed prometheus.Gauge

	// Ledger client metrics
	LedgerCallLatency *prometheus.HistogramVec
	LedgerCallErrors  *prometheus.CounterVec
	ConfirmationsSeen prometheus.Counter
	WSReconnectsTotal prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulMint prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "game_token_engine"
	}

	return &Metrics{
		// Mint metrics
		MintEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "events_total",
			Help:      "Total number of mint events by terminal status",
		}, []string{"status"}),
		MintedUnitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "units_total",
			Help:      "Total token units minted by destination leg",
		}, []string{"leg"}),
		MintTicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "ticks_skipped_total",
			Help:      "Total scheduler ticks skipped because a cycle was still running",
		}),
		MintLegRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "leg_retries_total",
			Help:      "Total transfer retries by leg",
		}, []string{"leg"}),
		MintCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "cycle_duration_seconds",
			Help:      "Mint cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Claim metrics
		ClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "resolved_total",
			Help:      "Total claims resolved by terminal status",
		}, []string{"status"}),
		ClaimedUnitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "units_total",
			Help:      "Total token units paid out to players",
		}),
		ClaimsRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "rate_limited_total",
			Help:      "Total claims rejected by the per-player rate limit",
		}),
		IdempotencyReplays: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "idempotency_replays_total",
			Help:      "Total claims answered from a previously recorded result",
		}),
		ClaimDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "duration_seconds",
			Help:      "Claim processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Pool metrics
		PoolAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "available_units",
			Help:      "Pool units available for claims",
		}),
		PoolReserved: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserved_units",
			Help:      "Pool units held by in-flight claims",
		}),
		PoolTotalMinted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "minted_units_total",
			Help:      "Lifetime units credited to the pool",
		}),
		PoolTotalClaimed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "claimed_units_total",
			Help:      "Lifetime units claimed from the pool",
		}),

		// Ledger client metrics
		LedgerCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LedgerCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_errors_total",
			Help:      "Total ledger RPC call errors by method",
		}, []string{"method"}),
		ConfirmationsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "confirmations_total",
			Help:      "Total transfer confirmations received over WebSocket",
		}),
		WSReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "ws_reconnects_total",
			Help:      "Total WebSocket reconnections",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulMint: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_mint_timestamp",
			Help:      "Unix timestamp of the last completed mint event",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMintEvent records a mint event reaching a terminal status.
func RecordMintEvent(status string) {
	DefaultMetrics.MintEventsTotal.WithLabelValues(status).Inc()
}

// RecordMintedUnits adds confirmed minted units for a leg.
func RecordMintedUnits(leg string, units int64) {
	DefaultMetrics.MintedUnitsTotal.WithLabelValues(leg).Add(float64(units))
}

// RecordLegRetry increments the transfer retry counter for a leg.
func RecordLegRetry(leg string) {
	DefaultMetrics.MintLegRetries.WithLabelValues(leg).Inc()
}

// RecordClaimResolved records a claim reaching a terminal status.
func RecordClaimResolved(status string, units int64) {
	DefaultMetrics.ClaimsTotal.WithLabelValues(status).Inc()
	if units > 0 {
		DefaultMetrics.ClaimedUnitsTotal.Add(float64(units))
	}
}

// UpdatePoolGauges publishes a pool accounting snapshot.
func UpdatePoolGauges(available, reserved, totalMinted, totalClaimed int64) {
	DefaultMetrics.PoolAvailable.Set(float64(available))
	DefaultMetrics.PoolReserved.Set(float64(reserved))
	DefaultMetrics.PoolTotalMinted.Set(float64(totalMinted))
	DefaultMetrics.PoolTotalClaimed.Set(float64(totalClaimed))
}

// RecordLedgerCall records ledger RPC call metrics.
func RecordLedgerCall(method string, seconds float64, err error) {
	DefaultMetrics.LedgerCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.LedgerCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
