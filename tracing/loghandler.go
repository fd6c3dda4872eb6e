package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type tableKey struct{}

// ContextWithTable records the table an operation works on. Records logged
// through a TracingHandler with that context carry it as "table".
func ContextWithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, tableKey{}, table)
}

// TableFromContext returns the table set by ContextWithTable.
func TableFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tableKey{}).(string)
	return t, ok && t != ""
}

// TracingHandler wraps a slog.Handler and adds the table of the context and,
// when a valid span is present, its trace_id and span_id.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler creates a TracingHandler that wraps inner.
func NewTracingHandler(inner slog.Handler) *TracingHandler {
	return &TracingHandler{inner: inner}
}

func (h *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TracingHandler) Handle(ctx context.Context, r slog.Record) error {
	if table, ok := TableFromContext(ctx); ok {
		r.AddAttrs(slog.String("table", table))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, r)
}

func (h *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: h.inner.WithGroup(name)}
}
