// Package telemetry provides OpenTelemetry tracing and metrics for goalseek.
//
// Traces and metrics are exported over OTLP (gRPC by default, HTTP/protobuf on
// request) to a collector. Telemetry is disabled by default; when disabled or
// degraded, Tracer and Meter fall back to the global no-op providers so the
// engine never has to check.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	engine := goalseek.NewEngine(exec, goalseek.WithTracerProvider(tel.TracerProvider()))
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc        # or http/protobuf
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: 15s
//
// # Testing
//
// NewTestTelemetry records spans in memory and reads metrics through a manual
// reader.
package telemetry
