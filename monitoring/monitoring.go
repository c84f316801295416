package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"webhook-service/logging"
)

var (
	// OpenTelemetry metrics
	WebhookCounter     metric.Int64Counter
	ForwardCounter     metric.Int64Counter
	PaymentAPIDuration metric.Float64Histogram
	HTTPServerDuration metric.Float64Histogram
)

// Instruments start against the global no-op provider so components
// can record before InitMeter has run (and in unit tests).
func init() {
	meter := otel.Meter("webhook-service")
	WebhookCounter, _ = meter.Int64Counter("webhooks_received_total")
	ForwardCounter, _ = meter.Int64Counter("confirmations_forwarded_total")
	PaymentAPIDuration, _ = meter.Float64Histogram("payment_api_duration_seconds")
	HTTPServerDuration, _ = meter.Float64Histogram("http_server_duration_milliseconds")
}

// InitTracer initializes OpenTelemetry tracing
func InitTracer(serviceName, endpoint string) (*sdktrace.TracerProvider, trace.Tracer, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	tracer := tp.Tracer(serviceName)

	logging.Info("Tracing initialized", zap.String("service_name", serviceName))

	return tp, tracer, nil
}

// InitMeter initializes OpenTelemetry metrics with an OTLP exporter
// and a Prometheus reader backing the /metrics endpoint.
func InitMeter(serviceName, endpoint string) (*sdkmetric.MeterProvider, metric.Meter, error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	// Create OTLP metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Prometheus reader for local scraping
	promReader, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithReader(promReader),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	meter := mp.Meter(serviceName)

	// Initialize metric instruments
	WebhookCounter, err = meter.Int64Counter(
		"webhooks_received_total",
		metric.WithDescription("Total number of webhook notifications received"),
	)
	if err != nil {
		return nil, nil, err
	}

	ForwardCounter, err = meter.Int64Counter(
		"confirmations_forwarded_total",
		metric.WithDescription("Total number of confirmations dispatched downstream"),
	)
	if err != nil {
		return nil, nil, err
	}

	PaymentAPIDuration, err = meter.Float64Histogram(
		"payment_api_duration_seconds",
		metric.WithDescription("Duration of payment processor API calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP server request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, nil, err
	}

	logging.Info("Metrics initialized with OTLP exporter", zap.String("endpoint", endpoint))

	return mp, meter, nil
}
