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

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := ContextWithTraceContext(context.Background(), traceparent, "")
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		t.Fatalf("expected a valid remote span context")
	}
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}

	gotParent, _ := TraceContextStrings(ctx)
	if gotParent != traceparent {
		t.Fatalf("expected %q, got %q", traceparent, gotParent)
	}
}

func TestContextWithTraceContext_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	if ContextWithTraceContext(ctx, "", "") != ctx {
		t.Fatalf("expected the same context back")
	}
}
