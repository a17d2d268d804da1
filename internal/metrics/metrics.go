// Package metrics holds the Prometheus metrics for the settlement service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RateCacheLookups *prometheus.CounterVec
	RateCacheEntries prometheus.Gauge
	ProviderFetches  *prometheus.CounterVec
	ProviderLatency  prometheus.Histogram
	SplitsTotal      *prometheus.CounterVec
	ReceiptsSaved    *prometheus.CounterVec
	ReceiptScans     *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on promhttp.Handler().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsplit_rate_cache_lookups_total",
			Help: "Exchange rate cache lookups by result (hit, miss)",
		}, []string{"result"}),
		RateCacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "receiptsplit_rate_cache_entries",
			Help: "Number of currency pairs currently held in the rate cache",
		}),
		ProviderFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsplit_rate_provider_fetches_total",
			Help: "Exchange rate provider requests by outcome (success, error)",
		}, []string{"outcome"}),
		ProviderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "receiptsplit_rate_provider_latency_seconds",
			Help:    "Latency of exchange rate provider requests",
			Buckets: prometheus.DefBuckets,
		}),
		SplitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsplit_splits_total",
			Help: "Bill split requests by outcome (ok, invalid, failed)",
		}, []string{"outcome"}),
		ReceiptsSaved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsplit_receipts_saved_total",
			Help: "Receipts saved by type (manual, scanned)",
		}, []string{"type"}),
		ReceiptScans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsplit_receipt_scans_total",
			Help: "OCR scan requests by outcome (ok, error)",
		}, []string{"outcome"}),
	}
}

// ObserveCacheLookup records a rate cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RateCacheLookups.WithLabelValues(result).Inc()
}

// SetCacheEntries records the current rate cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.RateCacheEntries.Set(float64(n))
}

// ObserveProviderFetch records one provider request.
func (m *Metrics) ObserveProviderFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ProviderFetches.WithLabelValues(outcome).Inc()
	m.ProviderLatency.Observe(d.Seconds())
}

// IncrementSplits records a split request outcome.
func (m *Metrics) IncrementSplits(outcome string) {
	if m == nil {
		return
	}
	m.SplitsTotal.WithLabelValues(outcome).Inc()
}

// IncrementReceiptsSaved records a saved receipt.
func (m *Metrics) IncrementReceiptsSaved(receiptType string) {
	if m == nil {
		return
	}
	m.ReceiptsSaved.WithLabelValues(receiptType).Inc()
}

// IncrementScans records an OCR scan outcome.
func (m *Metrics) IncrementScans(outcome string) {
	if m == nil {
		return
	}
	m.ReceiptScans.WithLabelValues(outcome).Inc()
}
