// Package otel binds hostauth engine counters to OpenTelemetry instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per histogram bucket. A single callback reads the
// engine snapshot on each collection cycle. Every observation carries an
// "instance" attribute so several engines can share one Meter.
//
// Callers own the MeterProvider.
package otel
