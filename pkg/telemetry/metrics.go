package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for the HTTP surface and batch files.
type Metrics struct {
	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	batchFiles   *prometheus.CounterVec
	batchRows    *prometheus.HistogramVec
	rowErrors    *prometheus.CounterVec
	ledgerAmount *prometheus.HistogramVec
}

// NewMetrics registers and returns Prometheus metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jukubill_api_requests_total",
		Help: "Counts API requests by route, status, and tenant.",
	}, []string{"route", "status", "tenant"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jukubill_api_duration_seconds",
		Help:    "API request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	batchFiles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jukubill_batch_files_total",
		Help: "Bank and direct-debit files processed by kind and outcome.",
	}, []string{"kind", "status"})

	batchRows := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jukubill_batch_file_rows",
		Help:    "Rows per processed batch file.",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	}, []string{"kind"})

	rowErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jukubill_batch_row_errors_total",
		Help: "Row-level errors reported while processing batch files.",
	}, []string{"kind"})

	ledgerAmount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jukubill_ledger_posting_amount",
		Help:    "Absolute ledger posting amounts by transaction type.",
		Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000},
	}, []string{"type"})

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(apiRequests, apiDuration, batchFiles, batchRows, rowErrors, ledgerAmount)

	return &Metrics{
		apiRequests:  apiRequests,
		apiDuration:  apiDuration,
		batchFiles:   batchFiles,
		batchRows:    batchRows,
		rowErrors:    rowErrors,
		ledgerAmount: ledgerAmount,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(route, status, tenant string, duration time.Duration) {
	if m == nil {
		return
	}
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(routeLabel, status, sanitizeTenant(tenant)).Inc()
	m.apiDuration.WithLabelValues(routeLabel).Observe(duration.Seconds())
}

// ObserveBatchFile records one processed file with its row and error counts.
func (m *Metrics) ObserveBatchFile(kind, status string, rows, rowErrors int) {
	if m == nil {
		return
	}
	kindLabel := sanitizeLabel(kind)
	m.batchFiles.WithLabelValues(kindLabel, sanitizeLabel(status)).Inc()
	m.batchRows.WithLabelValues(kindLabel).Observe(float64(rows))
	if rowErrors > 0 {
		m.rowErrors.WithLabelValues(kindLabel).Add(float64(rowErrors))
	}
}

// ObserveLedgerAmount records the magnitude of one ledger posting.
func (m *Metrics) ObserveLedgerAmount(txType string, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.ledgerAmount.WithLabelValues(sanitizeLabel(txType)).Observe(float64(amount))
}

func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
