package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() { _, _ = InitTracing(context.Background(), TracingConfig{}, nil) })

	_, span := otel.Tracer("test").Start(context.Background(), "fabric-test-span")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !strings.Contains(buf.String(), "fabric-test-span") {
		t.Fatalf("stdout exporter output missing span: %q", buf.String())
	}
}

func TestInitTracingRejectsBadConfig(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, SampleRatio: 2}, nil); err == nil {
		t.Fatalf("expected error for sample ratio above 1")
	}
}
