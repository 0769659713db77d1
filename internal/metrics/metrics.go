// Package metrics provides Prometheus instrumentation for the reconciliation service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"settlement-reconciliation-service/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts reconciliation runs by outcome (success, error).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_runs_total",
		Help: "Total number of reconciliation runs",
	}, []string{"outcome"})

	// RunDuration tracks end-to-end run latency, parsing included.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_run_duration_seconds",
		Help:    "Reconciliation run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TransactionsTotal counts reconciled transactions by status.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_transactions_total",
		Help: "Total transactions reconciled",
	}, []string{"status"})

	// FlaggedTotal counts transactions flagged as discrepancies.
	FlaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_flagged_transactions_total",
		Help: "Transactions flagged as discrepancies",
	})

	// DiscrepancyUSD accumulates the absolute USD gap of flagged transactions.
	DiscrepancyUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_discrepancy_usd_total",
		Help: "Cumulative absolute USD discrepancy of flagged transactions",
	})

	// AlertsTotal counts pattern alerts by type and severity.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_pattern_alerts_total",
		Help: "Pattern alerts emitted",
	}, []string{"type", "severity"})

	// RowsSkippedTotal counts input rows dropped in skip-invalid-rows mode.
	RowsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_rows_skipped_total",
		Help: "Input rows skipped because they failed to parse",
	}, []string{"source"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun records the outcome of a successful reconciliation run.
func RecordRun(result *models.ReconciliationResult, duration time.Duration) {
	RunsTotal.WithLabelValues("success").Inc()
	RunDuration.Observe(duration.Seconds())

	TransactionsTotal.WithLabelValues(string(models.StatusMatched)).Add(float64(result.Matched))
	TransactionsTotal.WithLabelValues(string(models.StatusUnmatchedOrder)).Add(float64(result.UnmatchedOrders))
	TransactionsTotal.WithLabelValues(string(models.StatusUnmatchedSettlement)).Add(float64(result.UnmatchedSettlements))

	FlaggedTotal.Add(float64(result.FlaggedCount))
	usd, _ := result.TotalDiscrepancyUSD.Float64()
	DiscrepancyUSD.Add(usd)

	for _, alert := range result.PatternAlerts {
		AlertsTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	}
	for _, row := range result.Diagnostics.SkippedRows {
		RowsSkippedTotal.WithLabelValues(row.Source).Inc()
	}
}

// RecordFailure records a run that ended in an error.
func RecordFailure(duration time.Duration) {
	RunsTotal.WithLabelValues("error").Inc()
	RunDuration.Observe(duration.Seconds())
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels requests by chi route pattern to keep cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
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
