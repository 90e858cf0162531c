// Package prometheus exposes authcore counters and the login latency histogram as a
// client_golang collector.
//
// [PrometheusExporter] implements prometheus.Collector: register it on your own
// registry, or mount [PrometheusExporter.Handler], which serves it from a private one.
// Counter names are authcore_*_total; the histogram is authcore_login_latency_seconds.
package prometheus
