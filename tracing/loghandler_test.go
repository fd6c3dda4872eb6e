package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) (context.Context, trace.TraceID, trace.SpanID) {
	t.Helper()
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), traceID, spanID
}

// logRecord logs one record through a TracingHandler and returns it decoded.
func logRecord(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	h := NewTracingHandler(slog.NewJSONHandler(&buf, nil))
	return decodeLine(t, &buf, func() { slog.New(h).InfoContext(ctx, "snapshot committed") })
}

func decodeLine(t *testing.T, buf *bytes.Buffer, log func()) map[string]any {
	t.Helper()
	log()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log output %q: %v", buf.String(), err)
	}
	return m
}

func TestTracingHandler_SpanAndTable(t *testing.T) {
	ctx, traceID, spanID := spanContext(t)
	ctx = ContextWithTable(ctx, "db.orders")

	m := logRecord(t, ctx)

	if got, want := m["trace_id"], traceID.String(); got != want {
		t.Errorf("trace_id = %q, want %q", got, want)
	}
	if got, want := m["span_id"], spanID.String(); got != want {
		t.Errorf("span_id = %q, want %q", got, want)
	}
	if got := m["table"]; got != "db.orders" {
		t.Errorf("table = %q, want db.orders", got)
	}
}

func TestTracingHandler_NoSpan(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		wantTable bool
	}{
		{"bare context", context.Background(), false},
		{"table only", ContextWithTable(context.Background(), "db.people"), true},
		{"empty table", ContextWithTable(context.Background(), ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := logRecord(t, tt.ctx)
			if _, ok := m["trace_id"]; ok {
				t.Error("trace_id should not be present without a span")
			}
			if _, ok := m["table"]; ok != tt.wantTable {
				t.Errorf("table present = %v, want %v", ok, tt.wantTable)
			}
		})
	}
}

func TestTracingHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewTracingHandler(slog.NewJSONHandler(&buf, nil))

	derived := handler.WithAttrs([]slog.Attr{slog.String("component", "committer")})
	if _, ok := derived.(*TracingHandler); !ok {
		t.Fatal("WithAttrs should return *TracingHandler")
	}

	ctx, traceID, _ := spanContext(t)
	m := decodeLine(t, &buf, func() { slog.New(derived).InfoContext(ctx, "test") })

	if m["component"] != "committer" {
		t.Error("WithAttrs attribute should be present")
	}
	if m["trace_id"] != traceID.String() {
		t.Error("trace_id should still be injected after WithAttrs")
	}
}

func TestTracingHandler_WithGroup(t *testing.T) {
	handler := NewTracingHandler(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	if _, ok := handler.WithGroup("grp").(*TracingHandler); !ok {
		t.Fatal("WithGroup should return *TracingHandler")
	}
}

func TestTracingHandler_Enabled(t *testing.T) {
	handler := NewTracingHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should not be enabled when inner level is warn")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled when inner level is warn")
	}
}

func TestTableFromContext(t *testing.T) {
	if _, ok := TableFromContext(context.Background()); ok {
		t.Error("no table expected on a bare context")
	}
	got, ok := TableFromContext(ContextWithTable(context.Background(), "db.t"))
	if !ok || got != "db.t" {
		t.Errorf("TableFromContext = %q, %v", got, ok)
	}
}
