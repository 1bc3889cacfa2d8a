// Package telemetry provides process-wide OTel meter/tracer accessors,
// one accessor per instrumentation name, for the LLM and benchmark call
// sites to pull meters/tracers from without threading a provider through
// every function signature.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Meter returns the global MeterProvider's meter for name. Callers are
// expected to cache the returned instruments behind a sync.Once.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Tracer returns the global TracerProvider's tracer for name.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
