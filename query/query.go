package query

import (
	"github.com/kbukum/rowquery/pipeline"
)

// Query accumulates filters, sort criteria and a window, and is consumed by
// Execute or Build. A Query is not safe for concurrent use.
type Query struct {
	filters  []Predicate
	criteria []SortCriterion
	window   Window
	opts     []Option
}

// New returns an empty Query. opts apply to every execution.
func New(opts ...Option) *Query {
	return &Query{
		window: DefaultWindow(),
		opts:   opts,
	}
}

// AddFilter appends p to the filter chain. Predicates combine by AND.
// A nil predicate is ignored.
func (q *Query) AddFilter(p Predicate) *Query {
	if p != nil {
		q.filters = append(q.filters, p)
	}
	return q
}

// AddSort appends a sort key. Earlier keys take precedence.
func (q *Query) AddSort(column int, dir Direction) (*Query, error) {
	if column < 0 {
		return q, invalidArgument("column", column, "must be a non-negative integer")
	}
	if !dir.Valid() {
		return q, invalidArgument("direction", dir, "must be Ascending or Descending")
	}
	q.criteria = append(q.criteria, SortCriterion{Column: column, Direction: dir})
	return q, nil
}

// SetOffset sets how many leading elements the window skips.
func (q *Query) SetOffset(offset int) (*Query, error) {
	if offset < 0 {
		return q, invalidArgument("offset", offset, "must be a non-negative integer")
	}
	q.window.Offset = offset
	return q, nil
}

// SetLimit sets the maximum number of elements the window yields.
// NoLimit removes the bound.
func (q *Query) SetLimit(limit int) (*Query, error) {
	if limit < NoLimit {
		return q, invalidArgument("limit", limit, "must be -1 or a non-negative integer")
	}
	q.window.Limit = limit
	return q, nil
}

// MustSort is AddSort for known-good arguments. It panics on error.
func (q *Query) MustSort(column int, dir Direction) *Query {
	return must(q.AddSort(column, dir))
}

// MustOffset is SetOffset for known-good arguments. It panics on error.
func (q *Query) MustOffset(offset int) *Query {
	return must(q.SetOffset(offset))
}

// MustLimit is SetLimit for known-good arguments. It panics on error.
func (q *Query) MustLimit(limit int) *Query {
	return must(q.SetLimit(limit))
}

func must(q *Query, err error) *Query {
	if err != nil {
		panic(err)
	}
	return q
}

// Build snapshots the configuration into a Spec and resets q.
func (q *Query) Build() Spec {
	spec := Spec{
		filters:  q.filters,
		criteria: q.criteria,
		window:   q.window,
		set:      true,
	}
	q.reset()
	return spec
}

func (q *Query) reset() {
	q.filters = nil
	q.criteria = nil
	q.window = DefaultWindow()
}

// Execute consumes the configuration and returns the query applied to src.
// q is reset even if the returned pipeline later fails.
func (q *Query) Execute(src *pipeline.Pipeline[Row]) *pipeline.Pipeline[Row] {
	return Run(q.Build(), src, q.opts...)
}

// ExecuteMap is Execute followed by a lazy transform of each surviving row.
func ExecuteMap[T any](q *Query, src *pipeline.Pipeline[Row], fn func(Row) T) *pipeline.Pipeline[T] {
	return RunMap(q.Build(), src, fn, q.opts...)
}
