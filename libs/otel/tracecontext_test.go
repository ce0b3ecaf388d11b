package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	traceparent, _ := TraceContextStrings(ctx)
	if traceparent == "" {
		t.Fatal("expected traceparent")
	}

	restored := trace.SpanContextFromContext(ContextWithTraceContext(context.Background(), traceparent, ""))
	if restored.TraceID() != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, restored.TraceID())
	}
	if got := ContextWithTraceContext(context.Background(), "", ""); got != context.Background() {
		t.Fatal("expected empty strings to return ctx unchanged")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("expected out-of-range ratio to fall back to 1, got %v", cfg.SampleRatio)
	}
}
