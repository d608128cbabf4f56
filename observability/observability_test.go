package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMetrics(t *testing.T) (*QueryMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewQueryMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}
	return m, reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("rowquery")

	if cfg.ServiceName != "rowquery" {
		t.Errorf("expected ServiceName 'rowquery', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("rowquery")

	if cfg.ServiceName != "rowquery" {
		t.Errorf("expected ServiceName 'rowquery', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
	}
	for _, tc := range tests {
		if got := samplerFor(tc.rate).Description(); got != tc.want {
			t.Errorf("samplerFor(%v) = %s, want %s", tc.rate, got, tc.want)
		}
	}
	if got := samplerFor(0.5).Description(); got == "AlwaysOnSampler" || got == "AlwaysOffSampler" {
		t.Errorf("expected ratio sampler for 0.5, got %s", got)
	}
}

func TestQueryMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordExecution(ctx, "run", StatusOK, 10*time.Millisecond)
	m.RecordExecution(ctx, "run", StatusError, 5*time.Millisecond)
	m.RecordRowsSorted(ctx, 7)
	m.RecordRowsEmitted(ctx, 3)
	m.RecordInconsistentRow(ctx, 2)
	m.RecordRequest(ctx, "GET", "/rows", 200, time.Millisecond)

	tests := []struct {
		name string
		want int64
	}{
		{MetricQueryExecutions, 2},
		{MetricRowsSorted, 7},
		{MetricRowsEmitted, 3},
		{MetricInconsistentRows, 1},
		{MetricHTTPRequests, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := collectSum(t, reader, tc.name); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestQueryMetrics_NilIsNoop(t *testing.T) {
	var m *QueryMetrics
	ctx := context.Background()
	m.RecordExecution(ctx, "run", StatusOK, time.Millisecond)
	m.RecordRowsSorted(ctx, 1)
	m.RecordRowsEmitted(ctx, 1)
	m.RecordInconsistentRow(ctx, 0)
	m.RecordRequest(ctx, "GET", "/", 200, time.Millisecond)
}

func TestNewOperationContext(t *testing.T) {
	oc := NewOperationContext("rowquery", "run", "q-1", nil)

	if oc.ServiceName != "rowquery" {
		t.Errorf("expected ServiceName 'rowquery', got %s", oc.ServiceName)
	}
	if oc.OperationName != "run" {
		t.Errorf("expected OperationName 'run', got %s", oc.OperationName)
	}
	if oc.QueryID != "q-1" {
		t.Errorf("expected QueryID 'q-1', got %s", oc.QueryID)
	}
	if oc.StartTime.IsZero() {
		t.Error("expected StartTime to be set")
	}
}

func TestOperationContextFromContext(t *testing.T) {
	oc := NewOperationContext("svc", "op", "q", nil)
	ctx := WithOperationContext(context.Background(), oc)

	if got := OperationContextFromContext(ctx); got != oc {
		t.Error("expected to retrieve the same OperationContext")
	}
	if OperationContextFromContext(context.Background()) != nil {
		t.Error("expected nil when not set")
	}
}

func TestOperationContext_SpanAndMetrics(t *testing.T) {
	sr := withRecorder(t)
	m, reader := newTestMetrics(t)

	oc := NewOperationContext("svc", "run", "q-42", m)
	ctx, span := oc.StartSpanForOperation(context.Background(), SpanQueryExecute)
	oc.EndOperation(ctx, span, errors.New("row 3 is short"))

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Name() != SpanQueryExecute {
		t.Errorf("expected span %s, got %s", SpanQueryExecute, ended[0].Name())
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrQueryID].AsString() != "q-42" {
		t.Errorf("expected query id attribute, got %v", attrs[AttrQueryID])
	}
	if attrs[AttrStatus].AsString() != StatusError {
		t.Errorf("expected status=error, got %v", attrs[AttrStatus])
	}
	if len(ended[0].Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}

	if got := collectSum(t, reader, MetricQueryExecutions); got != 1 {
		t.Errorf("expected 1 execution, got %d", got)
	}
}

func TestOperationContext_Duration(t *testing.T) {
	oc := NewOperationContext("svc", "op", "q", nil)
	time.Sleep(2 * time.Millisecond)
	if oc.Duration() <= 0 {
		t.Error("expected positive duration")
	}
}

func TestStartSpan(t *testing.T) {
	sr := withRecorder(t)

	ctx, span := StartSpan(context.Background(), SpanQuerySort)
	if !SpanFromContext(ctx).SpanContext().IsValid() {
		t.Error("expected a valid span in context")
	}
	span.End()

	if len(sr.Ended()) != 1 || sr.Ended()[0].Name() != SpanQuerySort {
		t.Errorf("expected one %s span", SpanQuerySort)
	}
}

func TestSetSpanAttribute(t *testing.T) {
	sr := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "attrs")
	SetSpanAttribute(ctx, "s", "v")
	SetSpanAttribute(ctx, "i", 3)
	SetSpanAttribute(ctx, "i64", int64(4))
	SetSpanAttribute(ctx, "f", 1.5)
	SetSpanAttribute(ctx, "b", true)
	SetSpanAttribute(ctx, "ss", []string{"a", "b"})
	SetSpanAttribute(ctx, "ignored", struct{}{})
	span.End()

	if got := len(sr.Ended()[0].Attributes()); got != 6 {
		t.Errorf("expected 6 attributes, got %d", got)
	}
}

func TestSetSpanAttributeNoSpan(t *testing.T) {
	SetSpanAttribute(context.Background(), "k", "v")
}

func TestSetSpanError(t *testing.T) {
	sr := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "err")
	SetSpanError(ctx, errors.New("boom"))
	span.End()

	if len(sr.Ended()[0].Events()) != 1 {
		t.Error("expected one error event")
	}
	SetSpanError(context.Background(), errors.New("no span"))
}

func TestNewServiceHealth(t *testing.T) {
	h := NewServiceHealth("rowquery", "1.0.0")
	if h.Status != HealthStatusUp {
		t.Errorf("expected status up, got %s", h.Status)
	}
	if h.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", h.Version)
	}
}

func TestServiceHealth_AddComponent(t *testing.T) {
	tests := []struct {
		name       string
		components []HealthStatus
		want       HealthStatus
	}{
		{"all up", []HealthStatus{HealthStatusUp, HealthStatusUp}, HealthStatusUp},
		{"degraded", []HealthStatus{HealthStatusUp, HealthStatusDegraded}, HealthStatusDegraded},
		{"down wins", []HealthStatus{HealthStatusDegraded, HealthStatusDown}, HealthStatusDown},
		{"degraded does not override down", []HealthStatus{HealthStatusDown, HealthStatusDegraded}, HealthStatusDown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewServiceHealth("svc", "")
			for i, s := range tc.components {
				h.AddComponent(Health{Name: string(rune('a' + i)), Status: s})
			}
			if h.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, h.Status)
			}
			if len(h.Components) != len(tc.components) {
				t.Errorf("expected %d components, got %d", len(tc.components), len(h.Components))
			}
		})
	}
}

func TestCheckerFunc(t *testing.T) {
	var c HealthChecker = CheckerFunc(func(ctx context.Context) Health {
		return Health{Name: "source", Status: HealthStatusUp}
	})
	if got := c.CheckHealth(context.Background()); got.Name != "source" {
		t.Errorf("unexpected health %+v", got)
	}
}

func TestInitTracer(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	cfg := DefaultTracerConfig("rowquery")
	tp, err := InitTracer(context.Background(), &cfg)
	if err != nil {
		t.Skipf("InitTracer failed (resource schema conflict): %v", err)
	}
	shutdownQuickly(t, tp.Shutdown)
}

func TestInitMeter(t *testing.T) {
	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	cfg := DefaultMeterConfig("rowquery")
	cfg.Interval = 0
	mp, err := InitMeter(context.Background(), &cfg)
	if err != nil {
		t.Skipf("InitMeter failed (resource schema conflict): %v", err)
	}
	shutdownQuickly(t, mp.Shutdown)
}

// shutdownQuickly bounds exporter flushes against an absent collector.
func shutdownQuickly(t *testing.T, shutdown func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
