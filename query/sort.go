package query

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/pipeline"
)

// sortStage orders rows by criteria. It pulls the whole upstream on the first
// Next, so it holds every surviving row in memory.
func sortStage(p *pipeline.Pipeline[pipeline.Indexed[Row]], criteria []SortCriterion, cfg *settings) *pipeline.Pipeline[pipeline.Indexed[Row]] {
	return pipeline.FromFunc(func(ctx context.Context) pipeline.Iterator[pipeline.Indexed[Row]] {
		return &sortIter{source: p.Iter(ctx), criteria: criteria, cfg: cfg}
	})
}

type sortIter struct {
	source   pipeline.Iterator[pipeline.Indexed[Row]]
	criteria []SortCriterion
	cfg      *settings

	sorted []pipeline.Indexed[Row]
	pos    int
	loaded bool
	err    error
}

func (it *sortIter) Next(ctx context.Context) (pipeline.Indexed[Row], bool, error) {
	if !it.loaded {
		it.loaded = true
		it.sorted, it.err = it.load(ctx)
	}
	if it.err != nil {
		return pipeline.Indexed[Row]{}, false, it.err
	}
	if it.pos >= len(it.sorted) {
		return pipeline.Indexed[Row]{}, false, nil
	}
	row := it.sorted[it.pos]
	it.pos++
	return row, true, nil
}

func (it *sortIter) Close() error { return it.source.Close() }

func (it *sortIter) load(ctx context.Context) ([]pipeline.Indexed[Row], error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanQuerySort)
	defer span.End()

	var rows []pipeline.Indexed[Row]
	for {
		row, ok, err := it.source.Next(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}

	keys := make([]string, len(it.criteria))
	for i, c := range it.criteria {
		keys[i] = c.String()
	}
	span.SetAttributes(
		attribute.Int(observability.AttrRows, len(rows)),
		attribute.StringSlice(observability.AttrSortKeys, keys),
	)

	sorted, err := sortRows(rows, it.criteria, it.cfg.compare)
	if err != nil {
		span.RecordError(err)
		if col, ok := inconsistentColumn(err); ok {
			it.cfg.metrics.RecordInconsistentRow(ctx, col)
		}
		it.cfg.log.WithContext(ctx).Warn("sort aborted", logger.ErrorFields("sort", err))
		return nil, err
	}

	it.cfg.metrics.RecordRowsSorted(ctx, len(rows))
	it.cfg.log.WithContext(ctx).Debug("rows sorted", logger.Fields(
		logger.FieldStage, "sort",
		logger.FieldRows, len(rows),
	))
	return sorted, nil
}

// extractKeys builds one key vector per criterion, scanning criterion by
// criterion. It fails on the first row that lacks a referenced column.
func extractKeys(rows []pipeline.Indexed[Row], criteria []SortCriterion) ([][]any, error) {
	keys := make([][]any, len(criteria))
	for c, crit := range criteria {
		col := make([]any, len(rows))
		for i, row := range rows {
			if crit.Column >= len(row.Value) {
				return nil, inconsistentRow(row.Index, crit.Column)
			}
			col[i] = row.Value[crit.Column]
		}
		keys[c] = col
	}
	return keys, nil
}

// sortRows stable-sorts rows by criteria. Ties on every key keep input order.
func sortRows(rows []pipeline.Indexed[Row], criteria []SortCriterion, compare Comparator) ([]pipeline.Indexed[Row], error) {
	keys, err := extractKeys(rows, criteria)
	if err != nil {
		return nil, err
	}

	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		for c, crit := range criteria {
			r := compare(keys[c][a], keys[c][b])
			if crit.Direction == Descending {
				r = -r
			}
			if r != 0 {
				return r
			}
		}
		return 0
	})

	out := make([]pipeline.Indexed[Row], len(rows))
	for i, p := range perm {
		out[i] = rows[p]
	}
	return out, nil
}
