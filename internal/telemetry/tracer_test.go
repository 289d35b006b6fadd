package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerRegistersGlobalProvider(t *testing.T) {
	tp, err := InitTracer("gift-service-test", "prod")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if tp == nil || TracerProvider != tp {
		t.Fatal("provider not stored globally")
	}
	if otel.GetTracerProvider() != tp {
		t.Error("provider not registered with otel")
	}

	// Spans must be creatable and the shutdown clean even without an
	// exporter attached.
	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	span.End()
	ShutdownTracer(context.Background())
}

func TestInitTracerDevAttachesExporter(t *testing.T) {
	tp, err := InitTracer("gift-service-test", "dev")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "dev-span")
	span.End()
	ShutdownTracer(context.Background())
}
