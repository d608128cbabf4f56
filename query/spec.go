package query

import "slices"

// Spec is an immutable snapshot of a query's configuration.
// The zero value is a passthrough with no filters, no sort and no window.
type Spec struct {
	filters  []Predicate
	criteria []SortCriterion
	window   Window
	set      bool
}

// Filters returns a copy of the installed predicates in installation order.
func (s Spec) Filters() []Predicate { return slices.Clone(s.filters) }

// Sort returns a copy of the sort criteria, primary key first.
func (s Spec) Sort() []SortCriterion { return slices.Clone(s.criteria) }

// Window returns the pagination window.
func (s Spec) Window() Window {
	if !s.set {
		return DefaultWindow()
	}
	return s.window
}

// IsPassthrough reports whether running s yields its input unchanged.
func (s Spec) IsPassthrough() bool {
	return len(s.filters) == 0 && len(s.criteria) == 0 && s.Window().IsPassthrough()
}
