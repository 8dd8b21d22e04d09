package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerPostings    metric.Int64Counter
	paymentsAllocated metric.Int64Counter
	allocatedAmount   metric.Int64Counter
	transfersImported metric.Int64Counter
	transfersMatched  metric.Int64Counter
	debitLines        metric.Int64Counter
	debitResults      metric.Int64Counter
	snapshots         metric.Int64Counter
}

// NewProvider installs the global meter provider. With export disabled it
// is a noop and every Record call costs nothing.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		noopProvider := noop.NewMeterProvider()
		otel.SetMeterProvider(noopProvider)
		return noopProvider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Info("exporting billing metrics",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "jukubill"
	}
	meter := provider.Meter(name)

	var err error
	m := &Metrics{}
	if m.ledgerPostings, err = meter.Int64Counter("jukubill_ledger_postings_total"); err != nil {
		return nil, err
	}
	if m.paymentsAllocated, err = meter.Int64Counter("jukubill_payments_allocated_total"); err != nil {
		return nil, err
	}
	if m.allocatedAmount, err = meter.Int64Counter("jukubill_payment_allocated_amount_total"); err != nil {
		return nil, err
	}
	if m.transfersImported, err = meter.Int64Counter("jukubill_bank_transfers_imported_total"); err != nil {
		return nil, err
	}
	if m.transfersMatched, err = meter.Int64Counter("jukubill_bank_transfers_matched_total"); err != nil {
		return nil, err
	}
	if m.debitLines, err = meter.Int64Counter("jukubill_debit_lines_exported_total"); err != nil {
		return nil, err
	}
	if m.debitResults, err = meter.Int64Counter("jukubill_debit_results_total"); err != nil {
		return nil, err
	}
	if m.snapshots, err = meter.Int64Counter("jukubill_billing_snapshots_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordLedgerPosting increments ledger posting counts.
func (m *Metrics) RecordLedgerPosting(ctx context.Context, orgID, txType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("transaction_type", strings.TrimSpace(txType)),
	)
	m.ledgerPostings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentAllocated records one registered payment and the amount applied to billings.
func (m *Metrics) RecordPaymentAllocated(ctx context.Context, orgID, method string, applied int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("method", strings.TrimSpace(method)),
	)
	m.paymentsAllocated.Add(ctx, 1, metric.WithAttributes(attrs...))
	if applied > 0 {
		m.allocatedAmount.Add(ctx, applied, metric.WithAttributes(attrs...))
	}
}

// RecordTransfersImported adds imported bank transfer rows.
func (m *Metrics) RecordTransfersImported(ctx context.Context, orgID, source string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("source_type", strings.TrimSpace(source)),
	)
	m.transfersImported.Add(ctx, int64(rows), metric.WithAttributes(attrs...))
}

// RecordTransferMatched increments matched transfer counts by strategy.
func (m *Metrics) RecordTransferMatched(ctx context.Context, orgID, strategy string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("reason", strings.TrimSpace(strategy)),
	)
	m.transfersMatched.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDebitExported adds exported direct-debit lines.
func (m *Metrics) RecordDebitExported(ctx context.Context, orgID, provider string, lines int) {
	if m == nil || lines <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("provider", strings.TrimSpace(provider)),
	)
	m.debitLines.Add(ctx, int64(lines), metric.WithAttributes(attrs...))
}

// RecordDebitResult increments direct-debit result counts.
func (m *Metrics) RecordDebitResult(ctx context.Context, orgID, provider, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.debitResults.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSnapshot increments generated billing snapshot counts by outcome.
func (m *Metrics) RecordSnapshot(ctx context.Context, orgID, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("status", strings.TrimSpace(outcome)),
	)
	m.snapshots.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":           {},
	"provider":         {},
	"method":           {},
	"status":           {},
	"source_type":      {},
	"transaction_type": {},
	"reason":           {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
