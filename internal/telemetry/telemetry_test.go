package telemetry

import (
	"context"
	"testing"

	"github.com/stanstork/stratum/internal/config"
)

func TestInit_StdoutFallback(t *testing.T) {
	config.ResetForTesting()
	if err := config.Initialize(); err != nil {
		t.Fatalf("config.Initialize failed: %v", err)
	}

	if err := Init(context.Background(), "test-version"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		if err := Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	}()

	if Tracer("test") == nil {
		t.Error("Tracer returned nil")
	}
	if Meter("test") == nil {
		t.Error("Meter returned nil")
	}
}

func TestInit_OtlpMetricEndpoint(t *testing.T) {
	config.ResetForTesting()
	if err := config.Initialize(); err != nil {
		t.Fatalf("config.Initialize failed: %v", err)
	}
	config.Set("runtime.otel_endpoint", "localhost:4318")
	config.Set("runtime.otel_insecure", true)

	if err := Init(context.Background(), "test-version"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestShutdown_NoopWithoutInit(t *testing.T) {
	shutdownFuncs = nil
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown with no providers installed should be a no-op, got: %v", err)
	}
}

func TestDefaultTracerAndMeter(t *testing.T) {
	if DefaultTracer() == nil {
		t.Error("DefaultTracer returned nil")
	}
	if DefaultMeter() == nil {
		t.Error("DefaultMeter returned nil")
	}
}
