// Package otel provides OpenTelemetry metric exporter bindings for
// authguard counters.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine metric.
// A single callback reads [authguard.Engine.MetricsSnapshot] on each
// collection cycle, so values are pulled rather than pushed.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
