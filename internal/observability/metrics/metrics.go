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
	checkoutSessions  metric.Int64Counter
	purchaseRequests  metric.Int64Counter
	reconcileOutcomes metric.Int64Counter
	creditsOffset     metric.Int64Counter
	pollAttempts      metric.Int64Counter
	paymentEvents     metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
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

// New registers the purchase-flow counters on provider's meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "carbonmarket"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.checkoutSessions, "carbonmarket_checkout_sessions_total", "Checkout sessions by mode and outcome.", "{session}"},
		{&m.purchaseRequests, "carbonmarket_purchase_requests_total", "Purchase requests recorded from the client.", "{request}"},
		{&m.reconcileOutcomes, "carbonmarket_reconcile_outcomes_total", "Reconciler runs by outcome.", "{run}"},
		{&m.creditsOffset, "carbonmarket_credits_offset_total", "Tonnes of carbon credits granted.", "t"},
		{&m.pollAttempts, "carbonmarket_poll_attempts_total", "Poll-until iterations by operation.", "{attempt}"},
		{&m.paymentEvents, "carbonmarket_payment_events_total", "Payment webhook events by provider and type.", "{event}"},
		{&m.rateLimitDenied, "carbonmarket_rate_limit_denied_total", "Requests rejected by a rate limit.", "{request}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || counter == nil || n <= 0 {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordCheckoutSession counts checkout sessions by mode and outcome.
func (m *Metrics) RecordCheckoutSession(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.checkoutSessions, 1, label("mode", mode), label("outcome", outcome))
}

func (m *Metrics) RecordPurchaseRequest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.purchaseRequests, 1, label("outcome", outcome))
}

// RecordReconcile counts reconciler outcomes; credits only move on success.
func (m *Metrics) RecordReconcile(ctx context.Context, outcome string, credits int64) {
	if m == nil {
		return
	}
	m.add(ctx, m.reconcileOutcomes, 1, label("outcome", outcome))
	m.add(ctx, m.creditsOffset, credits)
}

func (m *Metrics) RecordPollAttempt(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.add(ctx, m.pollAttempts, 1, label("operation", operation))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.paymentEvents, 1, label("provider", provider), label("event_type", eventType))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitDenied, 1, label("endpoint", endpoint), label("reason", reason))
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

// Labels allowed on exported series. user_id and product ids stay out.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"mode":        {},
	"outcome":     {},
	"operation":   {},
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"reason":      {},
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
