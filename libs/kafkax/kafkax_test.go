package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	withHeaders := kafka.Message{
		Topic:   "payments.mobile_money.result.v1",
		Key:     []byte("appt-1"),
		Headers: MetaHeaders(EventMeta{EventID: "evt-1", EventType: "payment.succeeded"}),
	}
	if meta := ExtractEventMeta(withHeaders); meta.EventID != "evt-1" || meta.EventType != "payment.succeeded" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	bare := kafka.Message{Topic: "payments.mobile_money.result.v1", Key: []byte("appt-1")}
	if meta := ExtractEventMeta(bare); meta.EventID != "payments.mobile_money.result.v1:appt-1" || meta.EventType != bare.Topic {
		t.Fatalf("unexpected fallback meta %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, MetaHeaders(EventMeta{EventID: "evt-1", EventType: "t"}))
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header to be appended")
	}
	if HeaderValue(headers, "event_id") != "evt-1" {
		t.Fatal("expected existing headers preserved")
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, got.TraceID())
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}
