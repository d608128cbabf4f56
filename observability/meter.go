package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/rowquery/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric instrument names.
const (
	MetricQueryExecutions     = "rowquery.query.executions"
	MetricQueryDuration       = "rowquery.query.duration"
	MetricRowsSorted          = "rowquery.rows.sorted"
	MetricRowsEmitted         = "rowquery.rows.emitted"
	MetricInconsistentRows    = "rowquery.rows.inconsistent"
	MetricHTTPRequests        = "rowquery.http.requests"
	MetricHTTPRequestDuration = "rowquery.http.request.duration"
)

// QueryMetrics holds the instruments recorded by query runs and the HTTP surface.
// A nil *QueryMetrics is valid and records nothing.
type QueryMetrics struct {
	executions       metric.Int64Counter
	duration         metric.Float64Histogram
	rowsSorted       metric.Int64Counter
	rowsEmitted      metric.Int64Counter
	inconsistentRows metric.Int64Counter
	httpRequests     metric.Int64Counter
	httpDuration     metric.Float64Histogram
}

// NewQueryMetrics creates metric instruments on the given meter.
func NewQueryMetrics(meter metric.Meter) (*QueryMetrics, error) {
	executions, err := meter.Int64Counter(MetricQueryExecutions,
		metric.WithDescription("Total number of query executions by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricQueryExecutions, err)
	}

	duration, err := meter.Float64Histogram(MetricQueryDuration,
		metric.WithDescription("Duration of query executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricQueryDuration, err)
	}

	rowsSorted, err := meter.Int64Counter(MetricRowsSorted,
		metric.WithDescription("Rows materialized by the sort stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRowsSorted, err)
	}

	rowsEmitted, err := meter.Int64Counter(MetricRowsEmitted,
		metric.WithDescription("Rows yielded to query consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRowsEmitted, err)
	}

	inconsistent, err := meter.Int64Counter(MetricInconsistentRows,
		metric.WithDescription("Sorts aborted because a row lacked a sort column"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricInconsistentRows, err)
	}

	httpRequests, err := meter.Int64Counter(MetricHTTPRequests,
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricHTTPRequests, err)
	}

	httpDuration, err := meter.Float64Histogram(MetricHTTPRequestDuration,
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricHTTPRequestDuration, err)
	}

	return &QueryMetrics{
		executions:       executions,
		duration:         duration,
		rowsSorted:       rowsSorted,
		rowsEmitted:      rowsEmitted,
		inconsistentRows: inconsistent,
		httpRequests:     httpRequests,
		httpDuration:     httpDuration,
	}, nil
}

// RecordExecution records a finished query run.
func (m *QueryMetrics) RecordExecution(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordRowsSorted records how many rows a sort stage materialized.
func (m *QueryMetrics) RecordRowsSorted(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.rowsSorted.Add(ctx, int64(n))
}

// RecordRowsEmitted records rows handed to a consumer.
func (m *QueryMetrics) RecordRowsEmitted(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.rowsEmitted.Add(ctx, int64(n))
}

// RecordInconsistentRow records a sort aborted by a short row.
func (m *QueryMetrics) RecordInconsistentRow(ctx context.Context, column int) {
	if m == nil {
		return
	}
	m.inconsistentRows.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("column", column),
	))
}

// RecordRequest records a completed HTTP request.
func (m *QueryMetrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}
