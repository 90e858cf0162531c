// Package otel binds authcore counters to OpenTelemetry observable instruments.
//
// [NewOTelExporter] creates one Int64ObservableCounter per engine counter. The login
// latency histogram becomes a <name>_bucket gauge carrying an "le" attribute per
// cumulative bucket, plus a <name>_count gauge. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection. The caller owns the
// MeterProvider.
package otel
