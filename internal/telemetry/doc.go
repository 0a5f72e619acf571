// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for scans.
//
// The CLI has no listener, so metrics are flushed to a node_exporter textfile
// after each command rather than served over HTTP.
package telemetry
