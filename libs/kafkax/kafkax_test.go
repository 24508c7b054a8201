package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMeta_FallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "contact.message.received.v1", Key: []byte("abc")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "abc" || meta.EventType != "contact.message.received.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = MetaHeaders(EventMeta{EventID: "evt-1", EventType: "booking.meeting.booked.v1"})
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "booking.meeting.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	parent := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), parent)

	headers := InjectTraceHeaders(ctx, MetaHeaders(EventMeta{EventID: "e", EventType: "t"}))
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if trace.SpanContextFromContext(out).TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id not propagated")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092")
	if len(got) != 2 || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}
