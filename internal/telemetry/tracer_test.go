package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:     false,
		ServiceName: "formd-test",
		Protocol:    "grpc",
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.tp != nil {
		t.Error("disabled config must install the noop provider")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("noop tracer span must not record")
	}
	span.End()

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestNewProvider_InvalidProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:     true,
		ServiceName: "formd-test",
		Protocol:    "udp",
	})
	if err == nil {
		t.Fatal("expected error for unsupported protocol")
	}

	want := "unsupported OTLP protocol: udp (supported: grpc, http)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/runs/{runID}", "/api/runs/abc", 200)
	if len(attrs) != 4 {
		t.Fatalf("got %d attributes, want 4", len(attrs))
	}
	if attrs[1].Value.AsString() != "/api/runs/{runID}" {
		t.Errorf("route = %q", attrs[1].Value.AsString())
	}
	if attrs[3].Value.AsInt64() != 200 {
		t.Errorf("status = %d", attrs[3].Value.AsInt64())
	}
}

func TestVideoAttributes(t *testing.T) {
	if got := VideoAttributes("", ""); len(got) != 0 {
		t.Errorf("empty inputs must yield no attributes, got %v", got)
	}

	attrs := VideoAttributes("squat1", "squat")
	want := []attribute.KeyValue{
		attribute.String(VideoIDKey, "squat1"),
		attribute.String(VideoExerciseKey, "squat"),
	}
	if len(attrs) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(attrs), len(want))
	}
	for i := range want {
		if attrs[i] != want[i] {
			t.Errorf("attrs[%d] = %v, want %v", i, attrs[i], want[i])
		}
	}
}

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("run-1", "completed", 4, 1234)
	if len(attrs) != 4 {
		t.Fatalf("got %d attributes, want 4", len(attrs))
	}
	if attrs[3].Value.AsInt64() != 1234 {
		t.Errorf("duration = %d, want 1234", attrs[3].Value.AsInt64())
	}
}
