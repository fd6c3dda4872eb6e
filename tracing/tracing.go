package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName is the otel service.name of the sink.
const ServiceName = "icesink"

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Exporter       string  // "none", "stdout", "otlp"
	Endpoint       string  // OTLP endpoint override (empty = use OTEL_EXPORTER_OTLP_ENDPOINT env)
	SampleRatio    float64 // 0.0-1.0, wrapped in ParentBased sampler
	ServiceVersion string
	CatalogType    string // recorded as a resource attribute when set
	Table          string // recorded as a resource attribute when set
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// Setup installs a global TracerProvider for cfg and the W3C propagator.
// The caller must call shutdown on exit. Exporter "none" (the default)
// installs nothing and returns a noop provider.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (trace.TracerProvider, func(), error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return noop.NewTracerProvider(), func() {}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, nil, err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetTracerProvider(tp)

	shutdown := func() {
		// Flushes spans of the last commit.
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("otel tracer provider shutdown error", "error", err)
		}
	}
	logger.Info("otel tracing enabled", "exporter", cfg.Exporter, "sample_ratio", ratio)
	return tp, shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	case "otlp":
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown otel exporter: %q (expected none, stdout, or otlp)", cfg.Exporter)
	}
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.CatalogType != "" {
		attrs = append(attrs, attribute.String("icesink.catalog_type", cfg.CatalogType))
	}
	if cfg.Table != "" {
		attrs = append(attrs, attribute.String("icesink.table", cfg.Table))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// FormatTraceparent returns the W3C traceparent of sc, or "" when sc is not
// valid. Snapshots store it so a commit can be found in the trace backend.
func FormatTraceparent(sc trace.SpanContext) string {
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
}

// ParseTraceparent is the inverse of FormatTraceparent. Only version 00 is
// accepted.
func ParseTraceparent(s string) (trace.SpanContext, bool) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 4 || parts[0] != "00" || len(parts[3]) != 2 {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return trace.SpanContext{}, false
	}
	var flags trace.TraceFlags
	switch parts[3] {
	case "00":
	case "01":
		flags = trace.FlagsSampled
	default:
		return trace.SpanContext{}, false
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: flags, Remote: true})
	return sc, sc.IsValid()
}
