// Package telemetry installs the global OTel tracer/meter providers.
// Tracers and meters taken from the otel global API (the postgres and
// mysql adapters' spans) or from this package's Tracer/Meter work
// whether or not a real exporter is wired up yet.
//
// Grounded on the teacher's internal/storage/dolt/store.go and
// internal/compact/haiku.go, both of which call otel.Tracer/otel.Meter
// (or this package's Tracer/Meter) against the process-global provider
// and note it is a no-op until Init runs: the otel SDK's global
// TracerProvider/MeterProvider are themselves delegating proxies, so
// every Tracer/Meter handle obtained before Init automatically starts
// emitting once Init installs the real providers — no re-registration
// needed at any call site.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/stanstork/stratum/internal/config"
)

const instrumentationScope = "github.com/stanstork/stratum"

var shutdownFuncs []func(context.Context) error

// Init builds the resource and providers from the runtime.otel_endpoint
// / runtime.otel_insecure config keys (config.RuntimeKeys). With no
// endpoint configured, traces and metrics are rendered to stdout — good
// enough for local runs and for the test harness to assert against.
// Metrics export over OTLP/HTTP when an endpoint is set; no OTLP trace
// exporter is wired (see DESIGN.md), so traces always render to stdout.
func Init(ctx context.Context, serviceVersion string) error {
	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			attribute.String("service.name", "stratum"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("telemetry: build trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	metricReader, err := buildMetricReader(ctx)
	if err != nil {
		return err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricReader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	return nil
}

func buildMetricReader(ctx context.Context) (sdkmetric.Reader, error) {
	endpoint := config.GetString("runtime.otel_endpoint")
	if endpoint == "" {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: build stdout metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exporter), nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if config.GetBool("runtime.otel_insecure") {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build otlp metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter), nil
}

// Shutdown flushes and closes every provider Init installed, in
// registration order. Safe to call even if Init was never called (a
// no-op then).
func Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	shutdownFuncs = nil
	return firstErr
}

// Tracer returns a named tracer bound to the global provider, forwarding
// to Init's real provider once installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns a named meter bound to the global provider, forwarding
// to Init's real provider once installed.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// DefaultTracer returns the tracer for this package's shared
// instrumentation scope.
func DefaultTracer() trace.Tracer { return Tracer(instrumentationScope) }

// DefaultMeter returns the meter for this package's shared
// instrumentation scope.
func DefaultMeter() metric.Meter { return Meter(instrumentationScope) }
