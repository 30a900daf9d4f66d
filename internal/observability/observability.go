// Package observability wires OpenTelemetry tracing for the engine. The
// orchestrator opens spans per request, per level, and per invocation; with
// no exporter configured every span is a no-op.
package observability

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName identifies the engine in exported traces.
const DefaultServiceName = "finsight"

var (
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// Config holds the recognized tracing options.
type Config struct {
	// ServiceName defaults to "finsight".
	ServiceName string

	// Enabled turns tracing off entirely when false.
	Enabled bool

	// ExporterType selects "otlp", "stdout", or "none".
	ExporterType string

	// OTLPEndpoint is the collector endpoint for the otlp exporter.
	OTLPEndpoint string

	// OTLPHeaders carries extra request headers, typically authorization.
	OTLPHeaders map[string]string
}

// InitFromEnv initializes tracing from the standard OpenTelemetry
// environment variables:
//   - OTEL_SERVICE_NAME (default "finsight")
//   - OTEL_TRACES_EXPORTER: "otlp", "stdout", or "none" (default "none")
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - OTEL_EXPORTER_OTLP_HEADERS as "key1=value1,key2=value2"
func InitFromEnv() error {
	exporter := getEnv("OTEL_TRACES_EXPORTER", "none")
	return Init(Config{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", DefaultServiceName),
		Enabled:      exporter != "none",
		ExporterType: exporter,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
}

// Init sets up the global tracer provider.
func Init(config Config) error {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if !config.Enabled || config.ExporterType == "none" || config.ExporterType == "" {
		tracer = otel.GetTracerProvider().Tracer(config.ServiceName)
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(config.ServiceName)),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.ExporterType {
	case "otlp":
		exporter, err = createOTLPExporter(config)
		if err != nil {
			return fmt.Errorf("create OTLP exporter: %w", err)
		}
		log.Printf("[Observability] Tracing to OTLP endpoint %s", config.OTLPEndpoint)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("create stdout exporter: %w", err)
		}
		log.Println("[Observability] Tracing to stdout")
	default:
		return fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(config.ServiceName)
	return nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return tracerProvider.Shutdown(ctx)
}

// StartSpan opens a span on the configured tracer, falling back to the
// global provider (a no-op without an SDK) when Init was never called.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tr := tracer
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}
	return tr.Start(ctx, name, opts...)
}

func createOTLPExporter(config Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{}
	if config.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.OTLPEndpoint))
	}
	if len(config.OTLPHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.OTLPHeaders))
	}
	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(context.Background(), client)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseHeaders(headerStr string) map[string]string {
	if headerStr == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return headers
}
