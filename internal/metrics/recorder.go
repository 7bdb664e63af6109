// Package metrics provides a Prometheus-backed recorder for service operation
// outcomes plus a stock-status gauge refreshed from ledger sweeps. Each
// Recorder owns a private registry so multiple instances (and parallel tests)
// never collide on metric registration.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bottlecore/pkg/domain"
)

// Recorder aggregates operation timings, result counters, and per-status
// product counts. It satisfies the service MetricsRecorder contract.
type Recorder struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
	stock     *prometheus.GaugeVec
}

// New constructs a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bottlecore_operation_duration_seconds",
		Help:    "Duration of service operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	r.results = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bottlecore_operation_results_total",
		Help: "Service operation outcomes by status.",
	}, []string{"operation", "status"})
	r.stock = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bottlecore_stock_status_products",
		Help: "Active products per stock status.",
	}, []string{"status"})
	r.registry.MustRegister(r.durations, r.results, r.stock)
	return r
}

// Observe records one service operation outcome. Empty operation names are
// ignored to keep the label space bounded.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// UpdateStockGauges recomputes the per-status product counts from a ledger
// sweep. All four statuses are written on every call so a status that empties
// out drops to zero instead of holding its last value. Inactive ledgers are
// skipped; retired products should not linger as "out".
func (r *Recorder) UpdateStockGauges(ledgers []domain.ProductLedger) {
	counts := map[domain.StockStatus]int{
		domain.StockGood:     0,
		domain.StockLow:      0,
		domain.StockCritical: 0,
		domain.StockOut:      0,
	}
	for _, ledger := range ledgers {
		if !ledger.Active {
			continue
		}
		counts[ledger.StockStatus()]++
	}
	for status, n := range counts {
		r.stock.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry so binaries can register
// additional collectors alongside the service metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
