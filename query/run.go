package query

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/pipeline"
)

// Run applies spec to src. Nothing is read until the result is pulled, and
// the result can be consumed once per pull of src.
func Run(spec Spec, src *pipeline.Pipeline[Row], opts ...Option) *pipeline.Pipeline[Row] {
	cfg := newSettings(opts)
	return pipeline.FromFunc(func(ctx context.Context) pipeline.Iterator[Row] {
		return startRun(ctx, spec, src, cfg)
	})
}

// RunMap is Run followed by a lazy transform of each surviving row.
func RunMap[T any](spec Spec, src *pipeline.Pipeline[Row], fn func(Row) T, opts ...Option) *pipeline.Pipeline[T] {
	return pipeline.Map(Run(spec, src, opts...), func(_ context.Context, row Row) (T, error) {
		return fn(row), nil
	})
}

// stages composes filter, sort and window in that fixed order.
func stages(spec Spec, src *pipeline.Pipeline[Row], cfg *settings) *pipeline.Pipeline[Row] {
	out := src

	if len(spec.filters) > 0 || len(spec.criteria) > 0 {
		indexed := pipeline.Enumerate(src)
		for _, p := range spec.filters {
			indexed = pipeline.Filter(indexed, func(in pipeline.Indexed[Row]) bool {
				return p(in.Value, in.Index)
			})
		}
		if len(spec.criteria) > 0 {
			indexed = sortStage(indexed, spec.criteria, cfg)
		}
		out = pipeline.Values(indexed)
	}

	if w := spec.Window(); !w.IsPassthrough() {
		out = pipeline.Slice(out, w.Offset, w.Limit)
	}
	return out
}

// runIter tracks one consumption of a query result for logs, traces and metrics.
type runIter struct {
	source  pipeline.Iterator[Row]
	queryID string
	oc      *observability.OperationContext
	span    trace.Span
	log     *logger.Logger
	metrics *observability.QueryMetrics
	emitted int
	done    bool
}

func startRun(ctx context.Context, spec Spec, src *pipeline.Pipeline[Row], cfg *settings) *runIter {
	id := uuid.NewString()
	oc := observability.NewOperationContext(serviceName, "run", id, cfg.metrics)
	ctx = logger.ContextWithQueryID(ctx, id)
	ctx, span := oc.StartSpanForOperation(ctx, observability.SpanQueryExecute)

	log := cfg.log.WithContext(ctx)
	w := spec.Window()
	log.Debug("query started", logger.Fields(
		"filters", len(spec.filters),
		"sort", len(spec.criteria),
		"offset", w.Offset,
		"limit", w.Limit,
	))

	return &runIter{
		source:  stages(spec, src, cfg).Iter(ctx),
		queryID: id,
		oc:      oc,
		span:    span,
		log:     log,
		metrics: cfg.metrics,
	}
}

// scope carries the run's span and query id into ctx for downstream stages.
func (it *runIter) scope(ctx context.Context) context.Context {
	return logger.ContextWithQueryID(trace.ContextWithSpan(ctx, it.span), it.queryID)
}

func (it *runIter) Next(ctx context.Context) (Row, bool, error) {
	row, ok, err := it.source.Next(it.scope(ctx))
	if err != nil {
		it.finish(ctx, err)
		return nil, false, err
	}
	if !ok {
		it.finish(ctx, nil)
		return nil, false, nil
	}
	it.emitted++
	return row, true, nil
}

func (it *runIter) Close() error {
	it.finish(context.Background(), nil)
	return it.source.Close()
}

func (it *runIter) finish(ctx context.Context, err error) {
	if it.done {
		return
	}
	it.done = true

	it.metrics.RecordRowsEmitted(ctx, it.emitted)
	it.oc.EndOperation(ctx, it.span, err)

	if err != nil {
		it.log.WithError(err).Warn("query failed", logger.Fields(logger.FieldRows, it.emitted))
		return
	}
	it.log.Debug("query finished", logger.Fields(
		logger.FieldRows, it.emitted,
		logger.FieldDuration, it.oc.Duration().Milliseconds(),
	))
}
