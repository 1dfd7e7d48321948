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
	invitationsIssued    metric.Int64Counter
	invitationTransition metric.Int64Counter
	notificationsFailed  metric.Int64Counter
	termsAccepted        metric.Int64Counter
	rateLimitDenied      metric.Int64Counter
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

// New registers the portal counters on provider's meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "portal"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.invitationsIssued, "portal_invitations_issued_total", "Invitations issued by kind."},
		{&m.invitationTransition, "portal_invitation_transitions_total", "Invitation status transitions."},
		{&m.notificationsFailed, "portal_notifications_failed_total", "Invitation emails that could not be sent."},
		{&m.termsAccepted, "portal_terms_accepted_total", "Companies that accepted the terms."},
		{&m.rateLimitDenied, "portal_rate_limit_denied_total", "Public token requests rejected by the rate limit."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordInvitationIssued(ctx context.Context, kind string) {
	if m != nil {
		add(ctx, m.invitationsIssued, attribute.String("kind", kind))
	}
}

// RecordInvitationTransition counts status changes such as PENDING to ACCEPTED.
func (m *Metrics) RecordInvitationTransition(ctx context.Context, kind, from, to string) {
	if m != nil {
		add(ctx, m.invitationTransition,
			attribute.String("kind", kind),
			attribute.String("from", from),
			attribute.String("to", to),
		)
	}
}

func (m *Metrics) RecordNotificationFailed(ctx context.Context, kind string) {
	if m != nil {
		add(ctx, m.notificationsFailed, attribute.String("kind", kind))
	}
}

func (m *Metrics) RecordTermsAccepted(ctx context.Context, termsVersion string) {
	if m != nil {
		add(ctx, m.termsAccepted, attribute.String("terms_version", termsVersion))
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m != nil {
		add(ctx, m.rateLimitDenied, attribute.String("endpoint", endpoint))
	}
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	for i, attr := range attrs {
		if attr.Value.Type() == attribute.STRING {
			attrs[i] = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
		}
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
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
	"kind":          {},
	"from":          {},
	"to":            {},
	"terms_version": {},
	"endpoint":      {},
	"status_code":   {},
	"reason":        {},
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
