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
	claimsAdjudicated    metric.Int64Counter
	linesDenied          metric.Int64Counter
	accumulatorConflicts metric.Int64Counter
	fundingDraws         metric.Int64Counter
	reversals            metric.Int64Counter
	adjudicationDuration metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
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
		name = "claims-askes"
	}
	meter := provider.Meter(name)

	claimsAdjudicated, err := meter.Int64Counter("askes_claims_adjudicated_total")
	if err != nil {
		return nil, err
	}
	linesDenied, err := meter.Int64Counter("askes_claim_lines_denied_total")
	if err != nil {
		return nil, err
	}
	accumulatorConflicts, err := meter.Int64Counter("askes_accumulator_conflicts_total")
	if err != nil {
		return nil, err
	}
	fundingDraws, err := meter.Int64Counter("askes_funding_draws_total")
	if err != nil {
		return nil, err
	}
	reversals, err := meter.Int64Counter("askes_reversals_total")
	if err != nil {
		return nil, err
	}
	adjudicationDuration, err := meter.Float64Histogram("askes_adjudication_duration_ms")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		claimsAdjudicated:    claimsAdjudicated,
		linesDenied:          linesDenied,
		accumulatorConflicts: accumulatorConflicts,
		fundingDraws:         fundingDraws,
		reversals:            reversals,
		adjudicationDuration: adjudicationDuration,
	}, nil
}

// RecordClaimAdjudicated increments the per-status claim counter.
func (m *Metrics) RecordClaimAdjudicated(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.claimsAdjudicated.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.adjudicationDuration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordLineDenied increments the per-reason denial counter.
func (m *Metrics) RecordLineDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.linesDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAccumulatorConflict counts version-conflict retries.
func (m *Metrics) RecordAccumulatorConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.accumulatorConflicts.Add(ctx, 1)
}

// RecordFundingDraw counts ledger draws by source.
func (m *Metrics) RecordFundingDraw(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.fundingDraws.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReversal counts reversal transactions.
func (m *Metrics) RecordReversal(ctx context.Context) {
	if m == nil {
		return
	}
	m.reversals.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"status": {},
	"reason": {},
	"source": {},
	"layer":  {},
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
