// Package telemetry provides observability instrumentation for stacklift.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring and debugging deployments.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	log, err := telemetry.NewLogger(cfg.Logging)
//	if err != nil {
//	    panic(err)
//	}
//	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
//	if err != nil {
//	    log.Fatalf("tracing init: %v", err)
//	}
//	defer tracer.Shutdown(context.Background())
//
// Component loggers carry structured context:
//
//	engineLog := log.NewComponentLogger("engine")
//	engineLog.WithRunID(runID).WithResourceID(id).Info("creating resource")
//
// Both *Metrics and *Tracer treat a nil receiver as a no-op, so libraries
// can record unconditionally.
package telemetry
