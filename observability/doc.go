// Package observability provides OpenTelemetry tracing and metrics for
// query runs and the HTTP surface.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("rowquery"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanQuerySort)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewQueryMetrics(observability.Meter("rowquery"))
//	q := query.New(query.WithMetrics(metrics))
//
// Health Checks:
//
//	health := observability.NewServiceHealth("rowquery", version.Short())
//	health.AddComponent(checker.CheckHealth(ctx))
package observability
