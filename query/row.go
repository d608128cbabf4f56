package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is one record: an ordered sequence of opaque field values.
// Rows in one dataset may have different lengths.
type Row []any

// StringRow adapts a string record, such as one produced by encoding/csv.
func StringRow(fields []string) Row {
	row := make(Row, len(fields))
	for i, f := range fields {
		row[i] = f
	}
	return row
}

// Strings formats every field with fmt. nil becomes the empty string.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		if v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// Predicate reports whether a row is kept. index is the row's position in
// the original input, before any filtering.
type Predicate func(row Row, index int) bool

// Direction is the ordering applied to one sort key.
type Direction int

const (
	Ascending Direction = iota + 1
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is Ascending or Descending.
func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

// ParseDirection accepts "asc" or "desc" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	default:
		return 0, invalidArgument("direction", s, "must be asc or desc")
	}
}

// SortCriterion is one key of a multi-key sort.
type SortCriterion struct {
	Column    int
	Direction Direction
}

func (c SortCriterion) String() string {
	return fmt.Sprintf("%d:%s", c.Column, c.Direction)
}

// ParseSort parses "column[:direction]", e.g. "0:asc" or "2:desc".
// The direction defaults to ascending.
func ParseSort(s string) (SortCriterion, error) {
	col, dir, found := strings.Cut(strings.TrimSpace(s), ":")
	column, err := strconv.Atoi(strings.TrimSpace(col))
	if err != nil {
		return SortCriterion{}, invalidArgument("sort", s, "column must be an integer")
	}
	if column < 0 {
		return SortCriterion{}, invalidArgument("sort", s, "column must be a non-negative integer")
	}
	direction := Ascending
	if found {
		if direction, err = ParseDirection(dir); err != nil {
			return SortCriterion{}, err
		}
	}
	return SortCriterion{Column: column, Direction: direction}, nil
}

// NoLimit is the Window limit meaning "no upper bound".
const NoLimit = -1

// Window selects the elements [Offset, Offset+Limit) of the filtered and
// sorted sequence. Limit NoLimit yields everything after Offset.
type Window struct {
	Offset int
	Limit  int
}

// DefaultWindow is the passthrough window.
func DefaultWindow() Window {
	return Window{Offset: 0, Limit: NoLimit}
}

// IsPassthrough reports whether the window selects every element.
func (w Window) IsPassthrough() bool {
	return w.Offset == 0 && w.Limit == NoLimit
}
