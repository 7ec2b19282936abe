// Package otel binds goNoPassword engine metrics to OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [goNoPassword.Engine.MetricsSnapshot] on each collection cycle. Callers own
// the MeterProvider.
package otel
