// Package internaldefs holds the metric names, help strings and bucket bounds shared
// by the Prometheus and OpenTelemetry exporters, so both publish identical series.
package internaldefs
