// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
// Telemetry is off by default. When enabled, spans and metrics go to an OTLP
// collector over gRPC or HTTP:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sample_rate: 1.0
//	  export_interval: 15s
//
// Exporter failures never stop an indexing run; the instance reports itself
// degraded and the global no-op providers stay in place.
//
// Tests hand components a Recorder's tracer or meter and read the spans and
// metrics back from memory.
package telemetry
